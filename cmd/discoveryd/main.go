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

// discoveryd is the iSCSI initiator discovery daemon: it owns the
// session registry, the discovery workers, and the Control API that
// discoveryctl and the rest of the host drive it through.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gostor/iscsid/pkg/apiserver"
	"github.com/gostor/iscsid/pkg/discovery"
	"github.com/gostor/iscsid/pkg/eventsink"
	"github.com/gostor/iscsid/pkg/isnsclient"
	"github.com/gostor/iscsid/pkg/sendtargets"
	"github.com/gostor/iscsid/pkg/store/filestore"
	"github.com/gostor/iscsid/pkg/store/sqlstore"
	"github.com/gostor/iscsid/pkg/transport"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var host string
	var storeKind string
	var storePath string
	var logLevel string
	var restart bool

	cmd := &cobra.Command{
		Use:   "discoveryd",
		Short: "Run the iSCSI initiator discovery daemon",
		Long:  `discoveryd runs the discovery workers (Static, SendTargets, SLP, iSNS), the session registry and the Control API that discoveryctl drives.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(host, storeKind, storePath, logLevel, restart)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&host, "host", "unix:///var/run/iscsid/control.sock", "Control API listen address (PROTO://ADDR)")
	flags.StringVar(&storeKind, "store", "file", "persistent store backend: file or sqlite")
	flags.StringVar(&storePath, "store-path", "", "store location (config dir for file, database file for sqlite; empty picks the backend default)")
	flags.StringVar(&logLevel, "log", "info", "log level of the discovery daemon")
	flags.BoolVar(&restart, "restart", false, "reload target/param/chap state from the store at startup without touching established sessions")
	return cmd
}

func run(host, storeKind, storePath, level string, restart bool) error {
	switch level {
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "panic", "fatal", "error":
		log.SetLevel(log.ErrorLevel)
	default:
		return fmt.Errorf("unknown log level: %v", level)
	}

	store, err := openStore(storeKind, storePath)
	if err != nil {
		log.Error(err)
		return err
	}

	core := discovery.NewCore(store, transport.NewStub(), isnsclient.NewStub(), sendtargets.NewStub(), eventsink.NewSystemd())

	ctx := context.Background()
	if err := core.Init(ctx, restart); err != nil {
		log.Error(err)
		return err
	}

	protoAddrParts := strings.SplitN(host, "://", 2)
	if len(protoAddrParts) != 2 {
		err := fmt.Errorf("bad format %s, expected PROTO://ADDR", host)
		log.Error(err)
		return err
	}
	serverConfig := &apiserver.Config{
		Addrs: []apiserver.Addr{{Proto: protoAddrParts[0], Addr: protoAddrParts[1]}},
	}

	s, err := apiserver.New(serverConfig)
	if err != nil {
		log.Error(err)
		return err
	}
	s.InitRouters(core, store)

	serveAPIWait := make(chan error)
	go s.Wait(serveAPIWait)

	stopAll := make(chan os.Signal, 1)
	signal.Notify(stopAll, syscall.SIGINT, syscall.SIGTERM)

	select {
	case errAPI := <-serveAPIWait:
		if errAPI != nil {
			log.Warnf("Shutting down due to ServeAPI error: %v", errAPI)
		}
	case <-stopAll:
		log.Info("Received shutdown signal")
	}

	if err := core.Fini(); err != nil {
		log.Warnf("error during discovery core shutdown: %v", err)
	}
	s.Close()
	return nil
}

// storeHandle is the subset of the concrete store types the daemon
// needs beyond discovery.Store itself: InitRouters also requires the
// Control API's narrower Adder interfaces, which filestore.Store and
// sqlstore.Store both satisfy structurally.
type storeHandle interface {
	discovery.Store
	apiserver.StaticAdder
	apiserver.DiscAddrAdder
}

func openStore(kind, path string) (storeHandle, error) {
	switch kind {
	case "file":
		return filestore.New(path)
	case "sqlite":
		if path == "" {
			path = "/var/lib/iscsid/discovery.db"
		}
		return sqlstore.New(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q (want file or sqlite)", kind)
	}
}
