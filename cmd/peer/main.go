package main

import (
	"os"

	logs "github.com/danmuck/smplog"

	"github.com/danmuck/p2p_rfc/cmd/internal/logcfg"
	"github.com/danmuck/p2p_rfc/src/library"
	"github.com/danmuck/p2p_rfc/src/peer"
	"github.com/danmuck/p2p_rfc/src/wire"
)

func main() {
	logs.Configure(logcfg.Load())

	cfg, err := loadRuntimeConfig(os.Args[1:])
	if err != nil {
		logs.Fatalf(err, "invalid configuration")
	}

	lib, err := library.Init(cfg.LibraryDir)
	if err != nil {
		logs.Fatalf(err, "failed to open library %s", cfg.LibraryDir)
	}

	// The listener role starts first so the advertised port is real
	// before anything is registered.
	listener := peer.NewListener(cfg.ListenAddr, lib, []string{cfg.Token})
	if err := listener.Listen(); err != nil {
		logs.Fatalf(err, "failed to start transfer listener on %s", cfg.ListenAddr)
	}
	go listener.Serve()
	defer listener.Close()

	self := wire.PeerAddress{Host: cfg.Host, Port: listener.Port()}
	agent := peer.NewAgent(cfg.ServerAddr, self, lib)

	if err := agent.RegisterLocal(cfg.Token); err != nil {
		logs.Warnf("startup registration incomplete: %v", err)
	}

	runLoop(os.Stdin, agent, cfg.Token)
}
