package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/quietloop/backlogpilot/internal/config"
	"github.com/quietloop/backlogpilot/internal/domain"
	"github.com/quietloop/backlogpilot/internal/orchestrator"
	"github.com/quietloop/backlogpilot/internal/queue"
	"github.com/quietloop/backlogpilot/internal/taskdb"
	"github.com/quietloop/backlogpilot/internal/taskfile"
)

// Exit codes for run and batch, distinct so automation can react to
// each terminal state.
const (
	exitOK          = 0
	exitError       = 1
	exitSafetyHalt  = 2
	exitNoEligible  = 3
	exitInterrupted = 4
)

var (
	listStatus   string
	historyLimit int
)

func init() {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one scheduling session",
		RunE:  runRun,
	}
	rootCmd.AddCommand(runCmd)

	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Show the queue a session would run right now",
		RunE:  runQueue,
	}
	rootCmd.AddCommand(queueCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List backlog tasks",
		RunE:  runList,
	}
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (open, blocked, done, closed)")
	rootCmd.AddCommand(listCmd)

	showCmd := &cobra.Command{
		Use:   "show TASK",
		Short: "Show one task in full",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
	rootCmd.AddCommand(showCmd)

	syncCmd := &cobra.Command{
		Use:   "sync [DIR]",
		Short: "Import markdown task files into the backlog",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSync,
	}
	rootCmd.AddCommand(syncCmd)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List past sessions",
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of sessions to show")
	rootCmd.AddCommand(historyCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
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

	report, err := eng.run(ctx, cfg, nil)
	if err != nil {
		return err
	}

	printReport(report)
	if code := exitCode(report); code != exitOK {
		os.Exit(code)
	}
	return nil
}

// exitCode maps a finished session onto the process exit code. An
// empty backlog is a clean no-op; open tasks with nothing admissible
// is a distinct condition automation may want to alert on.
func exitCode(r *orchestrator.Report) int {
	switch r.Session.Status {
	case domain.SessionInterrupted:
		return exitInterrupted
	case domain.SessionHalted:
		return exitSafetyHalt
	}
	if r.Admitted == 0 {
		if r.Eligible == 0 && r.Blocked == 0 {
			return exitOK
		}
		return exitNoEligible
	}
	if r.Session.Succeeded == 0 {
		return exitError
	}
	return exitOK
}

func printReport(r *orchestrator.Report) {
	s := r.Session
	fmt.Printf("session %s: %s\n", s.ID, s.Status)
	if s.HaltReason != "" {
		fmt.Printf("halted: %s\n", s.HaltReason)
	}
	fmt.Printf("%d admitted of %d eligible, %d blocked\n", r.Admitted, r.Eligible, r.Blocked)
	fmt.Printf("%d attempted, %d succeeded, %d failed, %d deferred\n",
		s.Attempted, s.Succeeded, s.Failed, s.Deferred)
	fmt.Printf("spent $%.2f in %s\n", s.TotalCost, s.Elapsed(time.Now()).Round(time.Second))

	for _, o := range s.Outcomes {
		mark := "ok"
		if !o.Success {
			mark = "FAIL"
		}
		ref := o.ArtifactRef
		if ref == "" {
			ref = "-"
		}
		fmt.Printf("  %-4s %s  $%.2f  %s  %s\n",
			mark, o.TaskID, o.CostUSD, o.Duration.Round(time.Second), ref)
	}
}

func runQueue(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.close()

	snap, err := eng.cache.Fetch(cmd.Context(), false)
	if err != nil {
		return err
	}

	builder := queue.NewBuilder(queue.Limits{
		ComplexityCeiling: cfg.Queue.ComplexityCeiling,
		TaskHoursCeiling:  cfg.Queue.TaskHoursCeiling,
		BudgetHours:       cfg.Session.TimeBudgetHours,
		MaxTasks:          cfg.Session.MaxTasks,
	})
	admitted := builder.Build(snap.Entries)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tID\tTITLE\tPRIORITY\tCOMPLEXITY\tHOURS\tRISK")
	for i, e := range admitted {
		fmt.Fprintf(w, "%d\t%s\t%s\t%.1f\t%.1f\t%.1f\t%s\n",
			i+1, e.Task.ID, truncate(e.Task.Title, 40),
			e.Score.Priority, e.Score.Complexity, e.Score.EstimatedHours, e.Score.Risk)
	}
	w.Flush()

	fmt.Printf("\n%d admitted of %d eligible, %.1fh of %.1fh budget\n",
		len(admitted), len(snap.Entries), queue.Hours(admitted), cfg.Session.TimeBudgetHours)

	if len(snap.Blocked) > 0 {
		fmt.Println("\nblocked:")
		for _, b := range snap.Blocked {
			fmt.Printf("  %s: %s\n", b.Task.ID, b.Reason)
		}
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.close()

	tasks, err := eng.backlog.ListTasks()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tAGE\tPR\tTITLE")
	for _, t := range tasks {
		if listStatus != "" && t.Status != domain.TaskStatus(listStatus) {
			continue
		}
		age := "-"
		if !t.CreatedAt.IsZero() {
			age = humanize.Time(t.CreatedAt)
		}
		pr := "-"
		if t.HasPR {
			pr = "open"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, age, pr, truncate(t.Title, 50))
	}
	w.Flush()
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.close()

	t, err := eng.backlog.GetTask(args[0])
	if err != nil {
		return fmt.Errorf("task %s: %w", args[0], err)
	}

	fmt.Printf("id:      %s\n", t.ID)
	fmt.Printf("title:   %s\n", t.Title)
	fmt.Printf("status:  %s\n", t.Status)
	if len(t.Labels) > 0 {
		fmt.Printf("labels:  %s\n", strings.Join(t.Labels, ", "))
	}
	if len(t.DependsOn) > 0 {
		fmt.Printf("depends: %s\n", strings.Join(t.DependsOn, ", "))
	}
	if !t.CreatedAt.IsZero() {
		fmt.Printf("created: %s (%s)\n", t.CreatedAt.Format("2006-01-02"), humanize.Time(t.CreatedAt))
	}
	if t.HasPR {
		fmt.Printf("pr:      open\n")
	}
	if t.SourceRef != "" {
		fmt.Printf("source:  %s\n", t.SourceRef)
	}
	if t.Description != "" {
		fmt.Printf("\n%s\n", t.Description)
	}
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dir := cfg.Backlog.TasksDir
	if len(args) > 0 {
		dir = args[0]
	}
	if dir == "" {
		return fmt.Errorf("no tasks directory: pass one or set backlog.tasks_dir")
	}

	store, err := taskdb.New(cfg.Backlog.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := syncDir(store, dir)
	if err != nil {
		return err
	}
	fmt.Printf("synced %d tasks from %s\n", n, dir)
	return nil
}

// syncDir imports every parseable task file under dir. Parse failures
// are logged and skipped; one bad file never blocks the rest.
func syncDir(store *taskdb.Store, dir string) (int, error) {
	tasks, errs := taskfile.ParseDir(dir)
	for _, err := range errs {
		log.Printf("warning: %v", err)
	}

	n := 0
	for _, t := range tasks {
		if err := store.UpsertTask(t); err != nil {
			return n, fmt.Errorf("upserting %s: %w", t.ID, err)
		}
		n++
	}
	return n, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := taskdb.New(cfg.Backlog.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.ListSessions(historyLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tSTATUS\tTASKS\tOK\tFAIL\tCOST\tNOTE")
	for _, s := range sessions {
		note := s.HaltReason
		if note == "" {
			note = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t$%.2f\t%s\n",
			humanize.Time(s.StartedAt), s.Status,
			s.Attempted, s.Succeeded, s.Failed, s.TotalCost, truncate(note, 40))
	}
	w.Flush()
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
