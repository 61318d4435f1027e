package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/repoatlas/repoatlas/internal/config"
	"github.com/repoatlas/repoatlas/internal/gitprobe"
	"github.com/repoatlas/repoatlas/internal/hostid"
	"github.com/repoatlas/repoatlas/internal/pipeline"
	"github.com/repoatlas/repoatlas/internal/store"
	"github.com/repoatlas/repoatlas/internal/ui"
	"github.com/repoatlas/repoatlas/internal/walker"
)

var scanCmd = &cobra.Command{
	Use:   "scan [paths...]",
	Short: "Walk the search roots once and update the atlas",
	Long: `Walk the configured search roots (or the paths given as
arguments), inspect every git repository found, follow the remotes they
reference, and persist the results.

Re-running a scan against an unchanged tree converges to the same rows:
views are keyed by (host, location) and overwritten in place.`,
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

		fmt.Printf("%s Scanning %d root(s)...\n", ui.RenderAccent("🔍"), len(cfg.Scan.Paths))
		start := time.Now()

		counts, err := runScan(ctx, cfg, st)
		if err != nil {
			fmt.Fprintf(os.Stderr, "\n%s Scan interrupted: %v\n", ui.RenderFail("✗"), err)
			os.Exit(1)
		}

		elapsed := time.Since(start)
		fmt.Printf("%s Scan complete in %v\n", ui.RenderPass("✓"), elapsed.Round(time.Millisecond))
		fmt.Printf("   Local repositories: %d\n", counts.Locals)
		fmt.Printf("   Remotes inspected: %d ok, %d failed\n", counts.RemotesOK, counts.RemotesErr)
		fmt.Printf("   Views stored: %d\n", counts.Stored)
		if counts.StoreErrs > 0 {
			fmt.Printf("   %s Store errors: %d (see log)\n", ui.RenderWarn("⚠"), counts.StoreErrs)
		}
		fmt.Printf("   Atlas: %s\n", st.Path())
	},
}

// runScan executes one full discovery pass: walker feeding the
// three-stage pipeline. Shared by scan and watch.
func runScan(ctx context.Context, cfg *config.Config, st *store.Store) (pipeline.Counts, error) {
	host, err := hostid.Current()
	if err != nil {
		return pipeline.Counts{}, fmt.Errorf("failed to resolve host identity: %w", err)
	}

	prober := gitprobe.New()
	prober.Logger = newLogger("[gitprobe] ")

	w := walker.New(cfg.Scan.Paths, cfg.Scan.Marker, cfg.Scan.FollowSymlinks, cfg.Scan.IgnorePaths)
	w.Logger = newLogger("[walker] ")

	candidates := make(chan string, 64)
	go w.Run(ctx, candidates)

	p := &pipeline.Pipeline{
		Host:          host,
		Inspector:     prober,
		Store:         st,
		LocalWorkers:  cfg.Scan.LocalWorkers,
		RemoteWorkers: cfg.Scan.RemoteWorkers,
		Logger:        newLogger("[pipeline] "),
	}

	return p.Run(ctx, candidates)
}

func init() {
	scanCmd.Flags().String("marker", "", "directory name identifying a repository (default .git)")
	scanCmd.Flags().Bool("follow-symlinks", false, "traverse symlinked directories")
	scanCmd.Flags().StringSlice("ignore", nil, "paths to skip, exact match")
	scanCmd.Flags().Int("local-workers", 0, "max concurrent local inspections (0 = unbounded)")
	scanCmd.Flags().Int("remote-workers", 0, "max concurrent remote inspections (0 = unbounded)")
	scanCmd.Flags().String("db", "", "atlas database file")

	cobra.CheckErr(vcfg.BindPFlag("scan.marker", scanCmd.Flags().Lookup("marker")))
	cobra.CheckErr(vcfg.BindPFlag("scan.follow_symlinks", scanCmd.Flags().Lookup("follow-symlinks")))
	cobra.CheckErr(vcfg.BindPFlag("scan.ignore_paths", scanCmd.Flags().Lookup("ignore")))
	cobra.CheckErr(vcfg.BindPFlag("scan.local_workers", scanCmd.Flags().Lookup("local-workers")))
	cobra.CheckErr(vcfg.BindPFlag("scan.remote_workers", scanCmd.Flags().Lookup("remote-workers")))
	cobra.CheckErr(vcfg.BindPFlag("db.path", scanCmd.Flags().Lookup("db")))

	rootCmd.AddCommand(scanCmd)
}
