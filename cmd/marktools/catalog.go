package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/akhaire21/marktools/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Validate and index the workflow catalog",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Check a catalog file for invalid workflows",
	Long: `Validate every workflow in a catalog file and report all problems,
including duplicate IDs. Without a path the configured catalog is checked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCatalogValidate,
}

var catalogIndexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Embed and index a catalog into the configured backend",
	Long: `Build the search index for a catalog. This is mostly useful for the
sqlite and postgres backends, which keep the index between runs.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCatalogIndex,
}

func init() {
	catalogCmd.AddCommand(catalogValidateCmd)
	catalogCmd.AddCommand(catalogIndexCmd)
}

func runCatalogValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.Catalog.Path
	if len(args) == 1 {
		path = args[0]
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	report, total, err := catalog.ValidateFile(path, data)
	if err != nil {
		return err
	}

	if len(report) == 0 {
		printStatus("✓", fmt.Sprintf("%d workflows valid in %s", total, path), color.FgGreen)
		return nil
	}

	ids := make([]string, 0, len(report))
	for id := range report {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		printStatus("✗", id, color.FgRed)
		for _, problem := range report[id] {
			fmt.Printf("    %s\n", problem)
		}
	}
	return fmt.Errorf("%d of %d workflows invalid", len(report), total)
}

func runCatalogIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Catalog.Path = args[0]
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	a := &app{cfg: cfg, log: log, closers: []func() error{log.Close}}
	defer a.Close()

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	if a.embedder, err = newEmbedder(cfg); err != nil {
		return err
	}
	if _, err := a.buildIndex(commandContext(cmd.Context()), cat); err != nil {
		return err
	}

	printStatus("✓", fmt.Sprintf("Indexed %d workflows into the %s backend", cat.Len(), cfg.Index.Backend), color.FgGreen)
	return nil
}
