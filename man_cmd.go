package main

import (
	"fmt"

	mcobra "github.com/muesli/mango-cobra"
	"github.com/muesli/roff"
	"github.com/spf13/cobra"
)

var manCmd = &cobra.Command{
	Use:                   "man",
	Short:                 "Generates manpages",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Hidden:                true,
	Args:                  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		page, err := mcobra.NewManPage(1, rootCmd)
		if err != nil {
			return fmt.Errorf("unable to build man page: %w", err)
		}

		page = page.WithSection("Environment", "IBM_ENDPOINT and IBM_KEY select the explanation model endpoint and its key. "+
			"CODEXPLAIN_SPEECH_KEY or OPENAI_API_KEY authenticate the speech proxy upstream.")
		_, err = fmt.Fprintln(cmd.OutOrStdout(), page.Build(roff.NewDocument()))
		return err
	},
}
