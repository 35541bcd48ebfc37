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

func newInitCommand(cli func() (*client, error)) *cobra.Command {
	var restart bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the discovery core",
		Args:  NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cli()
			if err != nil {
				return err
			}
			return c.init(context.Background(), restart)
		},
	}
	cmd.Flags().BoolVar(&restart, "restart", false, "reload target/param/chap state from the store without touching established sessions")
	return cmd
}

func newFiniCommand(cli func() (*client, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "fini",
		Short: "Disable every discovery method and tear down discovery workers",
		Args:  NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cli()
			if err != nil {
				return err
			}
			return c.fini(context.Background())
		},
	}
}
