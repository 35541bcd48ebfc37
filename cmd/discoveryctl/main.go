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

// discoveryctl is the command-line surface over the discovery
// daemon's Control API (§4.L).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var host string

	var cmd = &cobra.Command{
		Use:           "discoveryctl",
		Short:         "Control the iSCSI initiator discovery daemon",
		Long:          `discoveryctl drives the discoveryd Control API: enable/disable discovery methods, force a login pass, and inspect session state.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&host, "host", "unix:///var/run/iscsid/control.sock", "discoveryd control socket")

	cli := func() (*client, error) { return newClient(host) }

	cmd.AddCommand(
		newInitCommand(cli),
		newFiniCommand(cli),
		newEnableCommand(cli),
		newDisableCommand(cli),
		newPropsCommand(cli),
		newSessionsCommand(cli),
		newConfigOneCommand(cli),
		newConfigAllCommand(cli),
		newPokeCommand(cli),
		newSendTargetsCommand(cli),
		newISNSQueryCommand(cli),
		newStaticAddCommand(cli),
		newDiscAddrAddCommand(cli),
		newVersionCommand(),
	)
	return cmd
}

// NoArgs mirrors the teacher's cmd.NoArgs helper: reject any
// positional argument for commands that only take flags.
func NoArgs(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}
	return fmt.Errorf("%q accepts no argument(s)", cmd.CommandPath())
}
