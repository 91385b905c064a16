package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/directory-crawler/internal/site"
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List the directory sites that can be crawled",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("sites"); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, name := range site.DefaultRegistry().AllNames() {
			sc := cfg.Site(name)
			fmt.Fprintf(out, "%-12s rate=%.2f/s burst=%d\n", name, sc.RateLimit, sc.Burst) //nolint:errcheck
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sitesCmd)
}
