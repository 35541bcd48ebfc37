/*
Copyright 2016 The GoStor Authors All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"fmt"
	"net"

	"github.com/spf13/cobra"
)

// parseAddr turns a dotted-quad or colon-hex address string into the
// (insize, raw) pair the Control API's create routes expect.
func parseAddr(s string) (int, []byte, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return 0, nil, fmt.Errorf("bad parameter: %q is not a valid IP address", s)
	}
	if v4 := ip.To4(); v4 != nil {
		return 4, v4, nil
	}
	return 16, ip.To16(), nil
}

func newStaticAddCommand(cli func() (*client, error)) *cobra.Command {
	var addr string
	var port, tpgt uint16
	cmd := &cobra.Command{
		Use:   "static-add NAME",
		Short: "Add a static target entry to the persistent store",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("%q requires exactly one argument (the target name)", cmd.CommandPath())
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cli()
			if err != nil {
				return err
			}
			insize, raw, err := parseAddr(addr)
			if err != nil {
				return err
			}
			return c.addStatic(context.Background(), args[0], insize, raw, port, tpgt)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "target portal IP address")
	cmd.Flags().Uint16Var(&port, "port", 3260, "target portal port")
	cmd.Flags().Uint16Var(&tpgt, "tpgt", 1, "target portal group tag")
	return cmd
}

func newDiscAddrAddCommand(cli func() (*client, error)) *cobra.Command {
	var addr string
	var port, tpgt uint16
	cmd := &cobra.Command{
		Use:   "discaddr-add",
		Short: "Add a SendTargets/iSNS discovery address to the persistent store",
		Args:  NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cli()
			if err != nil {
				return err
			}
			insize, raw, err := parseAddr(addr)
			if err != nil {
				return err
			}
			return c.addDiscAddr(context.Background(), insize, raw, port, tpgt)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "discovery portal IP address")
	cmd.Flags().Uint16Var(&port, "port", 3260, "discovery portal port")
	cmd.Flags().Uint16Var(&tpgt, "tpgt", 1, "target portal group tag")
	return cmd
}
