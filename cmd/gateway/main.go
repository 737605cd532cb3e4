package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cuemby/ztgateway/pkg/adminapi"
	"github.com/cuemby/ztgateway/pkg/config"
	"github.com/cuemby/ztgateway/pkg/events"
	"github.com/cuemby/ztgateway/pkg/gateway"
	"github.com/cuemby/ztgateway/pkg/log"
	"github.com/cuemby/ztgateway/pkg/security"
	"github.com/cuemby/ztgateway/pkg/storage"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ztgateway",
	Short: "Zero-trust access gateway: mutually-authenticated DNS and transport tunneling",
	Long: `ztgateway fronts a set of internal services behind two
mutually-authenticated listeners: DNS over TLS on 853 for private-zone
resolution and a TLS transport tunnel on 8443 that forwards to backends
without ever revealing their addresses to the client.

A single self-signed certificate authority issues every endpoint and
server certificate; there are no intermediates and no revocation list.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"ztgateway version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("data-dir", "/var/lib/ztgateway", "Gateway data directory (certs/ and data/)")
	rootCmd.PersistentFlags().String("external-address", "", "Gateway's externally-visible address, used for server certs and signed bundles")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(endpointCmd)
	rootCmd.AddCommand(zoneCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(applyCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway's DNS, proxy, admin, and metrics listeners",
	RunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")

		cfg := config.Default()
		if configFile != "" {
			loaded, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg = loaded
		}
		if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" && (configFile == "" || cmd.Flags().Changed("data-dir")) {
			cfg.DataDir = dataDir
		}
		if externalAddr, _ := cmd.Flags().GetString("external-address"); externalAddr != "" {
			cfg.ExternalAddress = externalAddr
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		gw, err := gateway.New(cfg)
		if err != nil {
			return fmt.Errorf("initialize gateway: %w", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			fmt.Println("\nShutting down...")
			cancel()
		}()

		fmt.Printf("ztgateway starting\n")
		fmt.Printf("  DNS (DoT):   %s\n", cfg.DNSListen)
		fmt.Printf("  Proxy:       %s\n", cfg.ProxyListen)
		fmt.Printf("  Admin API:   %s\n", cfg.AdminListen)
		fmt.Printf("  Metrics:     %s\n", cfg.MetricsListen)
		fmt.Println()

		if err := gw.Start(ctx); err != nil {
			return fmt.Errorf("gateway exited with error: %w", err)
		}
		fmt.Println("✓ Shutdown complete")
		return nil
	},
}

func init() {
	startCmd.Flags().String("config", "", "Path to YAML configuration file")
}

// openAdmin opens the store and CA under the command's --data-dir and
// returns an adminapi.API over them, for CLI subcommands that mutate
// gateway state directly rather than through the running process's
// admin HTTP listener.
func openAdmin(cmd *cobra.Command) (*adminapi.API, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	externalAddr, _ := cmd.Flags().GetString("external-address")

	store, err := storage.NewJSONStore(filepath.Join(dataDir, "data"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	ca, err := security.LoadOrCreateCA(dataDir)
	if err != nil {
		return nil, fmt.Errorf("load CA: %w", err)
	}

	broker := events.NewBroker()
	broker.Start()

	return adminapi.New(store, ca, broker, adminapi.Config{
		DataDir:    dataDir,
		DNSAddr:    externalAddr + ":853",
		ProxyAddr:  externalAddr + ":8443",
		ServerName: externalAddr,
		TokenTTL:   24 * time.Hour,
	}), nil
}

// writeBundleFile writes a bundle archive to the path requested via
// --out, or to "<cn>.zip" in the current directory if unset.
func writeBundleFile(cmd *cobra.Command, cn string, bundle []byte) error {
	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = cn + ".zip"
	}
	if err := os.WriteFile(out, bundle, 0600); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	fmt.Printf("✓ bundle written to %s\n", out)
	return nil
}
