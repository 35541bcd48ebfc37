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
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPropsCommand(cli func() (*client, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "props",
		Short: "Show the enabled discovery methods and barrier state",
		Args:  NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cli()
			if err != nil {
				return err
			}
			props, err := c.getProps(context.Background())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 20, 1, 3, ' ', 0)
			fmt.Fprintln(w, "ENABLED METHODS\tIN PROGRESS")
			fmt.Fprintf(w, "%v\t%v\n", props["enabled_methods"], props["in_progress"])
			return w.Flush()
		},
	}
}

func newSessionsCommand(cli func() (*client, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List discovered sessions",
		Args:  NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cli()
			if err != nil {
				return err
			}
			sessions, err := c.getSessions(context.Background())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 20, 1, 3, ' ', 0)
			fmt.Fprintln(w, "KEY\tTARGET ADDR\tDISCOVERED BY")
			for _, s := range sessions {
				fmt.Fprintf(w, "%v\t%v\t%v\n", s["key"], s["target_addr"], s["discovered_by"])
			}
			return w.Flush()
		},
	}
}
