package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/repoatlas/repoatlas/internal/atlas"
	"github.com/repoatlas/repoatlas/internal/store"
	"github.com/repoatlas/repoatlas/internal/ui"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the views recorded in the atlas",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if _, err := os.Stat(cfg.DB.Path); os.IsNotExist(err) {
			fmt.Printf("%s Atlas not found at %s\n", ui.RenderWarn("⚠"), cfg.DB.Path)
			fmt.Printf("   Run 'repoatlas scan' first\n")
			return
		}

		st, err := store.Open(cfg.DB.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		ctx := context.Background()

		host, _ := cmd.Flags().GetString("host")
		kind, _ := cmd.Flags().GetString("kind")
		asJSON, _ := cmd.Flags().GetBool("json")

		views, err := st.ListViews(ctx, store.Filter{Host: host, Kind: kind})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing views: %v\n", err)
			os.Exit(1)
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(views); err != nil {
				fmt.Fprintf(os.Stderr, "Error encoding views: %v\n", err)
				os.Exit(1)
			}
			return
		}

		if len(views) == 0 {
			fmt.Printf("%s No views recorded\n", ui.RenderMuted("∅"))
			return
		}

		for _, v := range views {
			fmt.Printf("%s %s\n", ui.RenderBold(v.Location.Key()), ui.RenderMuted("("+v.Host+")"))
			printFacts(v.Facts)
		}
		fmt.Printf("\n%d view(s)\n", len(views))
	},
}

func printFacts(facts *atlas.Facts) {
	if facts == nil {
		fmt.Printf("   %s\n", ui.RenderFail("inspection failed"))
		return
	}

	if facts.Description != nil {
		fmt.Printf("   %s\n", *facts.Description)
	}
	if facts.Bare {
		fmt.Printf("   %s\n", ui.RenderMuted("bare"))
	}
	fmt.Printf("   branches: %d, remotes: %d\n", len(facts.Branches), len(facts.Remotes))
	for name, addr := range facts.Remotes {
		fmt.Printf("   %s %s\n", ui.RenderMuted(name+" ->"), addr)
	}
}

func init() {
	listCmd.Flags().String("host", "", "only views recorded by this host")
	listCmd.Flags().String("kind", "", "only this location kind (fs or net)")
	listCmd.Flags().Bool("json", false, "emit JSON instead of text")
	rootCmd.AddCommand(listCmd)
}
