package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/delta/pkg/deltalog"
	"github.com/cuemby/delta/pkg/log"
	"github.com/cuemby/delta/pkg/metrics"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	flagLogLevel string
	flagJSONLog  bool
	flagStore    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "delta",
	Short: "Delta - transactional table format over immutable columnar files",
	Long: `Delta maintains an ordered log of JSON actions that gives ACID
semantics, schema evolution, time-travel, and incremental streaming reads
on top of immutable data files in a filesystem or object store.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Init(log.Config{
			Level:      log.Level(flagLogLevel),
			JSONOutput: flagJSONLog,
			Output:     os.Stderr,
		})
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Delta version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flagJSONLog, "log-json", false, "Emit JSON logs")
	rootCmd.PersistentFlags().StringVar(&flagStore, "store", "file", "Log store backend (file or bolt)")

	rootCmd.AddCommand(metricsCmd)
}

// newRegistry builds a registry for the selected store backend
func newRegistry() *deltalog.Registry {
	kind := deltalog.StoreFile
	if flagStore == "bolt" {
		kind = deltalog.StoreBolt
	}
	return deltalog.NewRegistry(kind)
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Serve Prometheus metrics over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("listen")
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		log.Info("serving metrics on " + addr)
		return http.ListenAndServe(addr, mux)
	},
}

func init() {
	metricsCmd.Flags().String("listen", ":9090", "Listen address")
}
