package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"product-image-miner/config"
	"product-image-miner/internal/crawler"
	"product-image-miner/internal/logs"
)

func newCrawlCmd(rf *rootFlags) *cobra.Command {
	var (
		dataDir    string
		categories string
	)

	c := &cobra.Command{
		Use:   "crawl",
		Short: "Download product listings and details for the configured categories",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig(config.NewViper())
			if err != nil {
				return err
			}
			if categories == "" {
				categories = cfg.Catalog.Categories
			}
			cats, err := config.ParseCategories(categories)
			if err != nil {
				return fmt.Errorf("%w: %v", errUsage, err)
			}
			if len(cats) == 0 {
				return fmt.Errorf("%w: no categories (set CATALOG_CATEGORIES or --categories name=id,...)", errUsage)
			}
			if dataDir == "" {
				dataDir = cfg.Pipeline.InputDir
			}

			logger, err := logs.NewLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			client := crawler.NewClient(crawler.OptionsFromConfig(cfg, logger.Sugar()))
			results, err := client.Harvest(cmd.Context(), cats, dataDir)
			if !rf.quiet {
				if perr := printJSON(cmd.OutOrStdout(), results); perr != nil && err == nil {
					err = perr
				}
			}
			return err
		},
	}

	c.Flags().StringVar(&dataDir, "data-dir", "", "Directory for the crawled files (default PIPELINE_INPUT_DIR)")
	c.Flags().StringVar(&categories, "categories", "", "Categories as name=id,... (default CATALOG_CATEGORIES)")
	return c
}
