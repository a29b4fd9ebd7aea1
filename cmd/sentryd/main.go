package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sentryd/sentryd"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

// buildVersion is set at release build time via -ldflags; "dev" otherwise.
var buildVersion = "dev"

type options struct {
	logLevel uint32
	version  bool
}

func main() {
	var opt options
	cmd := &cobra.Command{
		Use:   "sentryd <config.toml>",
		Short: "On-device content-blocking engine",
		Long: `sentryd intercepts DNS queries and TCP flows on-device and blocks
requests targeting advertising or tracking hosts.

It reads a single TOML configuration file describing the DNS
interceptor, the stream interceptor, and the blocklist to enforce.
`,
		Example: `  sentryd config.toml`,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opt, args)
		},
		SilenceUsage: true,
	}

	cmd.Flags().Uint32VarP(&opt.logLevel, "log-level", "l", 4, "log level; 0=None .. 6=Trace")
	cmd.Flags().BoolVarP(&opt.version, "version", "v", false, "print version and exit")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opt options, args []string) error {
	if opt.version {
		fmt.Println("sentryd", buildVersion)
		return nil
	}
	if opt.logLevel > 6 {
		return fmt.Errorf("invalid log level: %d", opt.logLevel)
	}
	if len(args) < 1 {
		return errors.New("missing config file argument")
	}
	sentryd.Log.SetLevel(logrus.Level(opt.logLevel))

	cfg, err := loadConfig(args[0])
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	handle, err := sentryd.Start(sentryd.Config{
		ID:                 "sentryd",
		DNSListenAddr:      cfg.DNS.Address,
		UpstreamDNS:        cfg.DNS.UpstreamDNS,
		StreamListenAddr:   cfg.Stream.Address,
		MaxConnections:     cfg.Stream.MaxConnections,
		BlocklistPath:      cfg.Blocklist.Path,
		AllowlistPath:      cfg.Blocklist.AllowPath,
		ReloadEvery:        cfg.DNS.ReloadEvery,
		WatchBlocklistFile: cfg.Blocklist.WatchFile,
	})
	if err != nil {
		return err
	}

	var admin *sentryd.AdminListener
	if cfg.Admin.Address != "" {
		admin = sentryd.NewAdminListener("sentryd", cfg.Admin.Address, handle)
		go func() {
			if err := admin.Start(); err != nil {
				sentryd.Log.WithError(err).Error("admin listener failed")
			}
		}()
	}

	waitForSignal(handle)

	sentryd.Log.Info("stopping")
	if admin != nil {
		_ = admin.Stop()
	}
	return handle.Stop()
}

// waitForSignal blocks until SIGTERM or SIGINT, dumping the current
// blocklist size to the log on every SIGUSR1 in the meantime — an
// on-demand counter snapshot alongside the admin '/vars' endpoint.
func waitForSignal(handle *sentryd.Handle) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, unix.SIGUSR1)

	for s := range sig {
		if s == unix.SIGUSR1 {
			sentryd.Log.WithField("entries", handle.BlocklistLen()).Info("blocklist snapshot (SIGUSR1)")
			continue
		}
		return
	}
}
