package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/p2p_rfc/src/wire"
)

// RuntimeConfig is the peer's effective configuration: defaults, then
// the optional TOML file, then flags, each layer overriding the last.
type RuntimeConfig struct {
	ServerAddr string `toml:"server_addr"` // index server host:port
	Host       string `toml:"host"`        // advertised transfer-listener host
	ListenAddr string `toml:"listen_addr"` // transfer-listener bind address
	LibraryDir string `toml:"library_dir"` // directory of rfc<id>.txt files
	Token      string `toml:"token"`       // default protocol token for commands
}

func defaultConfig() RuntimeConfig {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return RuntimeConfig{
		ServerAddr: "localhost:7734",
		Host:       host,
		ListenAddr: ":0",
		LibraryDir: "./local/rfcs",
		Token:      wire.DefaultToken,
	}
}

func loadRuntimeConfig(args []string) (RuntimeConfig, error) {
	fs := flag.NewFlagSet("peer", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional TOML config file")
	serverAddr := fs.String("server", "", "index server address (host:port)")
	host := fs.String("host", "", "advertised host for the transfer listener")
	listenAddr := fs.String("listen", "", "transfer listener bind address")
	libraryDir := fs.String("library", "", "library directory")
	token := fs.String("token", "", "default protocol token")
	if err := fs.Parse(args); err != nil {
		return RuntimeConfig{}, err
	}

	cfg := defaultConfig()

	if *configPath != "" {
		if _, err := toml.DecodeFile(*configPath, &cfg); err != nil {
			return RuntimeConfig{}, fmt.Errorf("failed to load config %s: %w", *configPath, err)
		}
	}

	if *serverAddr != "" {
		cfg.ServerAddr = *serverAddr
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *libraryDir != "" {
		cfg.LibraryDir = *libraryDir
	}
	if *token != "" {
		cfg.Token = *token
	}

	if cfg.ServerAddr == "" {
		return RuntimeConfig{}, fmt.Errorf("server address must not be empty")
	}
	if cfg.Token == "" {
		cfg.Token = wire.DefaultToken
	}
	return cfg, nil
}
