package main

import (
	"os"

	"github.com/BurntSushi/toml"
)

// config is the decoded shape of a sentryd TOML config file: one [dns]
// table, one [stream] table, one [blocklist] table, and an optional
// [admin] table, one table per concern with no listener/resolver/group/
// router machinery since this service runs exactly one of each.
type config struct {
	DNS       dnsConfig
	Stream    streamConfig
	Blocklist blocklistConfig
	Admin     adminConfig
}

type dnsConfig struct {
	Address     string
	UpstreamDNS string `toml:"upstream-dns"`
	ReloadEvery uint32 `toml:"reload-every"`
}

type streamConfig struct {
	Address        string
	MaxConnections int `toml:"max-connections"`
}

type blocklistConfig struct {
	Path        string
	AllowPath   string `toml:"allow-path"`
	WatchFile   bool   `toml:"watch-file"`
}

type adminConfig struct {
	Address string
}

// loadConfig reads and decodes a single TOML config file.
func loadConfig(path string) (config, error) {
	var c config
	f, err := os.Open(path)
	if err != nil {
		return c, err
	}
	defer f.Close()
	_, err = toml.NewDecoder(f).Decode(&c)
	return c, err
}
