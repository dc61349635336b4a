package main

import (
	"flag"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	logs "github.com/danmuck/smplog"

	"github.com/danmuck/p2p_rfc/cmd/internal/logcfg"
	"github.com/danmuck/p2p_rfc/src/directory"
)

// fileConfig mirrors the optional TOML config file for the server.
type fileConfig struct {
	Addr               string   `toml:"addr"`
	Tokens             []string `toml:"tokens"`
	ReadTimeoutSeconds int      `toml:"read_timeout_seconds"`
}

func main() {
	logs.Configure(logcfg.Load())

	addr := flag.String("addr", ":7734", "TCP listen address")
	tokens := flag.String("tokens", "", "comma-separated accepted protocol tokens")
	configPath := flag.String("config", "", "optional TOML config file")
	flag.Parse()

	cfg := directory.ServerConfig{Addr: *addr}

	if *configPath != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(*configPath, &fc); err != nil {
			logs.Fatalf(err, "failed to load config %s", *configPath)
		}
		if fc.Addr != "" {
			cfg.Addr = fc.Addr
		}
		cfg.Tokens = fc.Tokens
		cfg.ReadTimeout = time.Duration(fc.ReadTimeoutSeconds) * time.Second
	}

	// flags override the config file
	if *addr != ":7734" {
		cfg.Addr = *addr
	}
	if *tokens != "" {
		cfg.Tokens = strings.Split(*tokens, ",")
	}

	srv := directory.NewServer(cfg, directory.NewStore())
	if err := srv.Listen(); err != nil {
		logs.Fatalf(err, "failed to listen")
	}
	srv.Serve()
}
