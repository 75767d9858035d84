package commands

import (
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"market-sync/internal/config"
)

var (
	configPath string
	cfg        config.Config
	logger     = log.New(os.Stdout, "[marketsync] ", log.LstdFlags|log.Lshortfile)

	flagRPCURL         string
	flagWSURL          string
	flagAddress        string
	flagContentBackend string
	flagGatewayURL     string
	flagNodeAPIURL     string
	flagCacheBackend   string
	flagCacheDSN       string
	flagJournalBackend string
	flagJournalDSN     string
	flagMetricsAddr    string
	flagTransientDelay time.Duration
	flagReadRetries    int
)

// Execute runs the root command.
func Execute() error {
	root := &cobra.Command{
		Use:          "marketsync",
		Short:        "Marketplace ledger sync client",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, &loaded)
			if err := loaded.Validate(); err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}

	registerFlags(root)

	root.AddCommand(
		watchCmd(),
		listCmd(),
		claimableCmd(),
		publishCmd(),
		offerCmd(),
		claimCmd(),
		transferOwnershipCmd(),
		setCostCmd(),
		ownerCmd(),
		historyCmd(),
	)
	return root.Execute()
}

// registerFlags binds the configuration override flags.
func registerFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&configPath, "config", os.Getenv(config.EnvPrefix+"CONFIG"), "YAML config file")
	pf.StringVar(&flagRPCURL, "rpc-url", "", "ledger JSON-RPC endpoint")
	pf.StringVar(&flagWSURL, "ws-url", "", "ledger websocket endpoint")
	pf.StringVar(&flagAddress, "address", "", "acting account address")
	pf.StringVar(&flagContentBackend, "content-backend", "", "content store: node, pinning or memory")
	pf.StringVar(&flagGatewayURL, "gateway-url", "", "content gateway base URL")
	pf.StringVar(&flagNodeAPIURL, "node-api-url", "", "content node API base URL")
	pf.StringVar(&flagCacheBackend, "cache-backend", "", "content cache: memory, postgres or redis")
	pf.StringVar(&flagCacheDSN, "cache-dsn", "", "content cache DSN or Redis URL")
	pf.StringVar(&flagJournalBackend, "journal-backend", "", "event journal: memory or clickhouse")
	pf.StringVar(&flagJournalDSN, "journal-dsn", "", "event journal DSN")
	pf.StringVar(&flagMetricsAddr, "metrics-addr", "", "Prometheus metrics HTTP address")
	pf.DurationVar(&flagTransientDelay, "transient-delay", 0, "how long a changed entry stays marked")
	pf.IntVar(&flagReadRetries, "read-retries", 0, "retries for failed ledger reads")
}

// applyFlags overlays explicitly set flags, the highest-precedence source.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	strs := []struct {
		name string
		src  *string
		dst  *string
	}{
		{"rpc-url", &flagRPCURL, &c.Ledger.RPCURL},
		{"ws-url", &flagWSURL, &c.Ledger.WSURL},
		{"address", &flagAddress, &c.Address},
		{"content-backend", &flagContentBackend, &c.Content.Backend},
		{"gateway-url", &flagGatewayURL, &c.Content.GatewayURL},
		{"node-api-url", &flagNodeAPIURL, &c.Content.NodeAPIURL},
		{"cache-backend", &flagCacheBackend, &c.Cache.Backend},
		{"cache-dsn", &flagCacheDSN, &c.Cache.DSN},
		{"journal-backend", &flagJournalBackend, &c.Journal.Backend},
		{"journal-dsn", &flagJournalDSN, &c.Journal.DSN},
		{"metrics-addr", &flagMetricsAddr, &c.MetricsAddr},
	}
	flags := cmd.Flags()
	for _, f := range strs {
		if flags.Changed(f.name) {
			*f.dst = *f.src
		}
	}
	if flags.Changed("transient-delay") {
		c.TransientDelay = flagTransientDelay
	}
	if flags.Changed("read-retries") {
		c.Ledger.ReadRetries = flagReadRetries
	}
}
