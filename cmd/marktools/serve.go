package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/akhaire21/marktools/internal/catalog"
	"github.com/akhaire21/marktools/internal/mcpserver"
)

var serveWatch bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the marketplace as MCP tools over stdio",
	Long: `Start an MCP server on stdin and stdout exposing the search_workflows,
estimate and buy tools to agents.

With --watch, the catalog file is reloaded and reindexed whenever it
changes. Searches already running finish on the old catalog.

Logs go to the debug log file, or to stderr with --verbose.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Reload the catalog when the file changes (default from catalog.watch)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(commandContext(cmd.Context()), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if serveWatch || cfg.Catalog.Watch {
		w, err := catalog.NewWatcher(cfg.Catalog.Path)
		if err != nil {
			return fmt.Errorf("watch catalog: %w", err)
		}
		w.OnReload = func(cat *catalog.Catalog) {
			if err := a.reload(ctx, cat); err != nil {
				a.log.Log("[serve] reload failed: %v", err)
				return
			}
			a.log.Log("[serve] reloaded %d workflows", cat.Len())
		}
		w.OnError = func(err error) {
			a.log.Log("[serve] catalog reload error: %v", err)
		}
		if err := w.Start(); err != nil {
			return fmt.Errorf("watch catalog: %w", err)
		}
		defer w.Stop()
	}

	return mcpserver.NewServer(a.market, a.log).ServeStdio()
}
