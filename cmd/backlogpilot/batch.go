package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/quietloop/backlogpilot/internal/batch"
	"github.com/quietloop/backlogpilot/internal/config"
	"github.com/quietloop/backlogpilot/internal/notify"
	"github.com/quietloop/backlogpilot/internal/watch"
)

var schedulePath string

func init() {
	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Run sessions unattended on a cron schedule",
		RunE:  runBatch,
	}
	batchCmd.PersistentFlags().StringVar(&schedulePath, "schedule", "",
		"batch schedule file (default ~/.config/backlogpilot/batches.toml)")

	batchListCmd := &cobra.Command{
		Use:   "list",
		Short: "List configured batches and their next run",
		RunE:  runBatchList,
	}
	batchCmd.AddCommand(batchListCmd)
	rootCmd.AddCommand(batchCmd)
}

func defaultSchedulePath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "backlogpilot", "batches.toml")
}

// loadBatches reads the schedule file, falling back to the single cron
// expression in the main config when the file has none.
func loadBatches(cfg *config.Config) ([]batch.BatchConfig, error) {
	path := schedulePath
	if path == "" {
		path = defaultSchedulePath()
	}

	sched, err := batch.LoadScheduleConfig(path)
	if err != nil {
		return nil, err
	}

	batches := sched.Batches
	if len(batches) == 0 && cfg.Batch.Schedule != "" {
		b := batch.BatchConfig{
			Name:             "default",
			Cron:             cfg.Batch.Schedule,
			NotifyOnComplete: true,
		}
		if err := b.Validate(); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	if len(batches) == 0 {
		return nil, fmt.Errorf("no batches configured: create %s or set batch.schedule", path)
	}
	return batches, nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	batches, err := loadBatches(cfg)
	if err != nil {
		return err
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Keep the backlog fresh between sessions: re-import task files on
	// change and drop the eligibility cache.
	if cfg.Backlog.Kind == "sqlite" && cfg.Backlog.TasksDir != "" {
		w, err := watch.New(func(changed []string) {
			log.Printf("%d task files changed, resyncing", len(changed))
			if _, err := syncDir(eng.store, cfg.Backlog.TasksDir); err != nil {
				log.Printf("warning: resync: %v", err)
			}
			eng.cache.Invalidate()
		})
		if err != nil {
			return fmt.Errorf("starting task file watcher: %w", err)
		}
		if err := w.Add(cfg.Backlog.TasksDir); err != nil {
			return fmt.Errorf("watching %s: %w", cfg.Backlog.TasksDir, err)
		}
		w.Start(ctx)
		defer w.Stop()
	}

	sched := batch.NewScheduler(batches)
	for _, name := range sched.ListBatches() {
		if next, err := sched.NextRun(name); err == nil {
			log.Printf("batch %s: next run %s", name, humanize.Time(next))
		}
	}

	go func() {
		<-ctx.Done()
		sched.Stop()
	}()

	log.Printf("batch mode: %d batches, checking every minute", len(batches))
	sched.Start(func(b batch.BatchConfig) error {
		runCfg := b.Apply(cfg)
		notifier := eng.notifier
		if !b.NotifyOnComplete {
			notifier = quietNotifier{eng.notifier}
		}

		log.Printf("batch %s: starting session", b.Name)
		report, err := eng.run(ctx, runCfg, notifier)
		if err != nil {
			return err
		}
		s := report.Session
		log.Printf("batch %s: session %s %s, %d/%d succeeded, $%.2f spent",
			b.Name, s.ID, s.Status, s.Succeeded, s.Attempted, s.TotalCost)
		return nil
	})

	log.Printf("batch mode stopped")
	return nil
}

func runBatchList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	batches, err := loadBatches(cfg)
	if err != nil {
		return err
	}
	sched := batch.NewScheduler(batches)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCRON\tNEXT RUN\tMAX TASKS\tBUDGET\tCOST LIMIT")
	for _, name := range sched.ListBatches() {
		b, _ := sched.GetConfig(name)
		next := "-"
		if t, err := sched.NextRun(name); err == nil {
			next = humanize.Time(t)
		}
		eff := b.Apply(cfg)
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.1fh\t$%.2f\n",
			name, b.Cron, next,
			eff.Session.MaxTasks, eff.Session.TimeBudgetHours, eff.Session.CostLimitUSD)
	}
	w.Flush()
	return nil
}

// quietNotifier drops routine completion notices so an hourly batch
// over an idle backlog stays silent. Halts, failures, and interrupts
// still get through.
type quietNotifier struct {
	inner notify.Notifier
}

func (q quietNotifier) Send(n notify.Notification) error {
	if n.Event == notify.EventSessionComplete && n.Severity == notify.SeveritySuccess {
		return nil
	}
	return q.inner.Send(n)
}
