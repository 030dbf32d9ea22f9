package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"product-image-miner/config"
)

type rootFlags struct {
	quiet bool
}

func newRootCmd() *cobra.Command {
	var rf rootFlags

	rootCmd := &cobra.Command{
		Use:           "miner",
		Short:         "Crawl a product catalog and map product ids to base64 thumbnails",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return errUsage
		},
	}
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})

	rootCmd.PersistentFlags().BoolVarP(&rf.quiet, "quiet", "q", config.NewViper().GetBool("MINER_QUIET"), "Do not print the JSON summary")

	rootCmd.AddCommand(
		newCrawlCmd(&rf),
		newPassCmd(&rf, passMap),
		newPassCmd(&rf, passRetry),
	)
	return rootCmd
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: %s takes no arguments, got %q", errUsage, cmd.Name(), args)
	}
	return nil
}
