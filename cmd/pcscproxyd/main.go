// Command pcscproxyd runs the PC/SC network proxy daemon.
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/pcscproxy/pcscproxy/internal/accept"
	"github.com/pcscproxy/pcscproxy/internal/allowlist"
	"github.com/pcscproxy/pcscproxy/internal/config"
	"github.com/pcscproxy/pcscproxy/internal/logging"
	"github.com/pcscproxy/pcscproxy/pcsc"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	configPath     string
	listenOverride string
	debug          bool
)

var rootCmd = &cobra.Command{
	Use:           "pcscproxyd",
	Short:         "pcscproxyd exposes local PC/SC smart-card readers over TCP",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the proxy daemon in the foreground",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&listenOverride, "listen", "", "override the configured listen address")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logging.NewLogger(debug).FatalError(err)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if listenOverride != "" {
		cfg.Listen = listenOverride
	}

	log := logging.NewLogger(debug)

	allow, err := allowlist.Parse(cfg.Allow)
	if err != nil {
		return fmt.Errorf("parse allow-list: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}
	log.Info("listening", "addr", cfg.Listen)

	srv := accept.New(ln, pcsc.NewBackend(), allow, log)

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Listen, log)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", "signal", sig.String())
		return srv.Close()
	case err := <-errCh:
		return err
	}
}

func serveMetrics(addr string, log *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil { //nolint:gosec
		log.Error("metrics listener stopped", err)
	}
}
