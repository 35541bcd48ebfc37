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

	"github.com/spf13/cobra"
)

func newEnableCommand(cli func() (*client, error)) *cobra.Command {
	var poke bool
	cmd := &cobra.Command{
		Use:   "enable [method...]",
		Short: "Enable one or more discovery methods (static, sendtargets, slp, isns; default: all)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cli()
			if err != nil {
				return err
			}
			return c.enable(context.Background(), args, poke)
		},
	}
	cmd.Flags().BoolVar(&poke, "poke", false, "run one discovery cycle immediately instead of waiting for the worker's own schedule")
	return cmd
}

func newDisableCommand(cli func() (*client, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disable [method...]",
		Short: "Disable one or more discovery methods (static, sendtargets, slp, isns; default: all)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cli()
			if err != nil {
				return err
			}
			return c.disable(context.Background(), args)
		},
	}
	return cmd
}
