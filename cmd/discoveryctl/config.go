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

func newConfigOneCommand(cli func() (*client, error)) *cobra.Command {
	var protect bool
	cmd := &cobra.Command{
		Use:   "config-one NAME",
		Short: "Force a login pass for a single target name",
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
			return c.configOne(context.Background(), args[0], protect)
		},
	}
	cmd.Flags().BoolVar(&protect, "protect", false, "respect the config-storm debounce window instead of forcing a poke")
	return cmd
}

func newConfigAllCommand(cli func() (*client, error)) *cobra.Command {
	var protect bool
	cmd := &cobra.Command{
		Use:   "config-all",
		Short: "Force a login pass across every known target",
		Args:  NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cli()
			if err != nil {
				return err
			}
			return c.configAll(context.Background(), protect)
		},
	}
	cmd.Flags().BoolVar(&protect, "protect", false, "respect the config-storm debounce window instead of forcing a poke")
	return cmd
}
