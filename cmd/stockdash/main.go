// stockdash — stock market dashboard
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/seenimoa/stockdash/api"
	"github.com/seenimoa/stockdash/internal/config"
	"github.com/seenimoa/stockdash/internal/dashboard"
	"github.com/seenimoa/stockdash/internal/logging"
	"github.com/seenimoa/stockdash/internal/metrics"
	"github.com/seenimoa/stockdash/internal/stockapi"
	"github.com/seenimoa/stockdash/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config and logger
var (
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
)

func main() {
	err := rootCmd.Execute()
	if logCloser != nil {
		logCloser.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stockdash",
	Short: "stockdash — stock market dashboard",
	Long: `stockdash serves a single-page stock dashboard.
Type a symbol, press Search or Enter, and the dashboard shows the latest
snapshot from the stock data service: price, change, trading range,
fundamentals and a price-trend chart.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
			if err := cfg.Validate(); err != nil {
				return err
			}
		}

		// Only the server logs to stdout; CLI output stays clean.
		if cmd.Name() != serveCmd.Name() {
			logger = logging.NewWithWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
			return nil
		}
		logger, logCloser, err = logging.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(statusCmd)
}

// newFetcher builds the data-service client from config.
func newFetcher(m *metrics.Metrics) *stockapi.Client {
	return stockapi.NewClient(cfg.Upstream.BaseURL,
		stockapi.WithTimeout(cfg.UpstreamTimeout()),
		stockapi.WithUserAgent(cfg.Upstream.UserAgent),
		stockapi.WithLogger(logger),
		stockapi.WithMetrics(m),
	)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// Version needs no config.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("stockdash %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Serve Command ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.Addr()
		if a, _ := cmd.Flags().GetString("addr"); a != "" {
			addr = a
		}

		var m *metrics.Metrics
		if cfg.Metrics.Enabled {
			m = metrics.New()
		}

		srv, err := api.NewServer(cfg, newFetcher(m),
			api.WithLogger(logger),
			api.WithMetrics(m),
			api.WithVersion(version),
		)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("starting stockdash",
			"addr", addr,
			"upstream", cfg.Upstream.BaseURL,
			"version", version,
		)
		return srv.Run(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address override (host:port)")
}

// --- Lookup Command ---

var lookupCmd = &cobra.Command{
	Use:   "lookup [symbol]",
	Short: "Fetch one stock and print the dashboard as text",
	Long: `Fetch one stock snapshot through the same controller the web
dashboard uses and print the rendered dashboard.

Examples:
  stockdash lookup TCS
  stockdash lookup INFY --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		ctrl := dashboard.NewController(newFetcher(nil), dashboard.Options{Logger: logger})
		searchErr := ctrl.SearchFor(cmd.Context(), args[0])
		view := dashboard.Render(ctrl.State())

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(view); err != nil {
				return err
			}
		} else {
			fmt.Fprint(cmd.OutOrStdout(), dashboard.RenderText(view))
		}
		return searchErr
	},
}

func init() {
	lookupCmd.Flags().Bool("json", false, "print the view model as JSON")
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running server and the configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		base, _ := cmd.Flags().GetString("url")
		if base == "" {
			base = "http://" + localAddr(cfg.API.Host, cfg.API.Port)
		}

		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  stockdash — System Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:       %s (%s)\n", version, commit)
		fmt.Printf("  Market Status: %s\n", utils.MarketStatus())
		fmt.Printf("  Time (IST):    %s\n", utils.FormatDateTimeIST(utils.NowIST()))
		fmt.Println()

		fmt.Println("  Configuration:")
		fmt.Printf("    Data Service:  %s (timeout %s)\n", cfg.Upstream.BaseURL, cfg.UpstreamTimeout())
		fmt.Printf("    API Server:    %s\n", cfg.Addr())
		fmt.Printf("    Metrics:       %v (%s)\n", cfg.Metrics.Enabled, cfg.Metrics.Path)
		fmt.Printf("    Log Level:     %s\n", cfg.Logging.Level)
		fmt.Println()

		fmt.Println("  Server:")
		h, err := fetchHealth(cmd.Context(), base)
		if err != nil {
			fmt.Printf("    ❌ %s unreachable: %v\n", base, err)
		} else {
			fmt.Printf("    ✅ %s (%s, version %s)\n", base, h.Status, h.Version)
			fmt.Printf("    Sessions:      %d\n", h.Sessions)
			fmt.Printf("    WS Clients:    %d\n", h.WSClients)
		}
		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}

func init() {
	statusCmd.Flags().String("url", "", "server base URL (default: from config)")
}

// localAddr turns a listen host into one a local client can dial.
func localAddr(host string, port int) string {
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func fetchHealth(ctx context.Context, base string) (*api.HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var body struct {
		Data api.HealthStatus `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode health: %w", err)
	}
	return &body.Data, nil
}
