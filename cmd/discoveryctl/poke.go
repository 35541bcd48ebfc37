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

	"github.com/spf13/cobra"
)

func newPokeCommand(cli func() (*client, error)) *cobra.Command {
	var method string
	cmd := &cobra.Command{
		Use:   "poke",
		Short: "Wake a discovery method's worker and block for its cycle to finish (default: every method)",
		Args:  NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cli()
			if err != nil {
				return err
			}
			return c.poke(context.Background(), method)
		},
	}
	cmd.Flags().StringVar(&method, "method", "", "discovery method to poke (static, sendtargets, slp, isns; default: all)")
	return cmd
}

func newSendTargetsCommand(cli func() (*client, error)) *cobra.Command {
	var addr string
	var port uint16
	cmd := &cobra.Command{
		Use:   "sendtgts",
		Short: "Issue an on-demand SendTargets probe against a single address",
		Args:  NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cli()
			if err != nil {
				return err
			}
			if addr == "" {
				return fmt.Errorf("%q requires --addr", cmd.CommandPath())
			}
			insize, raw, err := parseAddr(addr)
			if err != nil {
				return err
			}
			return c.sendTargets(context.Background(), insize, raw, port)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "SendTargets portal IP address")
	cmd.Flags().Uint16Var(&port, "port", 3260, "SendTargets portal port")
	return cmd
}

func newISNSQueryCommand(cli func() (*client, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "isns-query",
		Short: "Issue an on-demand iSNS query for the current initiator identity",
		Args:  NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cli()
			if err != nil {
				return err
			}
			return c.isnsQuery(context.Background())
		},
	}
	return cmd
}
