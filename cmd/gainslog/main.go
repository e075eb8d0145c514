// cmd/gainslog/main.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gainslog/internal/server"
)

type rootOptions struct {
	configPath string
	driver     string
	dbPath     string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "gainslog",
		Short: "Food log with automatic nutrition estimation",
		Long: `gainslog records what you eat. Nutrition you leave out is estimated
by an external service while the entry is shown right away; anything you
typed always wins over the estimate.`,
		Version:       server.ServerInfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	flags.StringVar(&opts.driver, "driver", "", "Storage driver: sqlite or postgres")
	flags.StringVar(&opts.dbPath, "db-path", "", "Database path (sqlite) or connection string (postgres)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error")

	cmd.AddCommand(
		newServeCmd(opts),
		newAddCmd(opts),
		newListCmd(opts),
		newTotalsCmd(opts),
		newDeleteCmd(opts),
	)
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
