package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/repoatlas/repoatlas/internal/store"
	"github.com/repoatlas/repoatlas/internal/ui"
	"github.com/repoatlas/repoatlas/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [paths...]",
	Short: "Scan, then keep the atlas current as the roots change",
	Long: `Run an initial scan, then watch the search roots and re-scan
after changes settle. Runs in the foreground until interrupted.

The watch observes the top level of each root, which catches project
directories appearing and disappearing. Pass --rescan-interval to also
re-scan periodically and pick up deeper changes.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) > 0 {
			vcfg.Set("scan.paths", args)
		}

		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(cfg.Scan.Paths) == 0 {
			fmt.Fprintf(os.Stderr, "Error: no search paths configured (pass paths or set scan.paths)\n")
			os.Exit(1)
		}

		st, err := store.Open(cfg.DB.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := st.InitSchema(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
			os.Exit(1)
		}

		rescanInterval, err := cmd.Flags().GetDuration("rescan-interval")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		scan := func(ctx context.Context) error {
			counts, err := runScan(ctx, cfg, st)
			if err != nil {
				return err
			}
			fmt.Printf("%s Scan: %d locals, %d remotes ok, %d remotes failed, %d stored\n",
				ui.RenderPass("✓"), counts.Locals, counts.RemotesOK, counts.RemotesErr, counts.Stored)
			return nil
		}

		wcfg := watch.DefaultConfig()
		wcfg.Debounce = time.Duration(cfg.Watch.DebounceMS) * time.Millisecond
		wcfg.RescanInterval = rescanInterval
		wcfg.Logger = newLogger("[watch] ")

		d, err := watch.New(cfg.Scan.Paths, scan, wcfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating watch daemon: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Watching %d root(s), atlas at %s\n", ui.RenderAccent("👁"), len(cfg.Scan.Paths), st.Path())
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Watch daemon stopped with error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	watchCmd.Flags().Duration("rescan-interval", 0, "also re-scan on this interval (0 disables)")
	rootCmd.AddCommand(watchCmd)
}
