package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/MemoryDrop/internal/capture"
	"github.com/dharsanguruparan/MemoryDrop/internal/config"
	"github.com/dharsanguruparan/MemoryDrop/internal/controller"
	"github.com/dharsanguruparan/MemoryDrop/internal/logging"
	"github.com/dharsanguruparan/MemoryDrop/internal/model"
	"github.com/dharsanguruparan/MemoryDrop/internal/monitor"
	"github.com/dharsanguruparan/MemoryDrop/internal/queue"
	"github.com/dharsanguruparan/MemoryDrop/internal/state"
	"github.com/dharsanguruparan/MemoryDrop/internal/transport"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "memorydrop: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memorydrop",
		Short: "MemoryDrop ingestion CLI",
		Long: `MemoryDrop uploads local media files to the archive server, kicks off
server-side analysis, and keeps tracking the processing batch across runs
until the backend reports it finished.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newUploadCmd(),
		newWatchCmd(),
		newStatusCmd(),
	)
	return cmd
}

// app bundles the wired dependencies one command invocation needs.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	store *state.SQLiteStore
	ctrl  *controller.Controller
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	store, err := state.Open(cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	client := transport.NewClient(cfg.APIURL, cfg.HTTPTimeout, logger)
	q := queue.New(capture.Default())
	executor := transport.NewExecutor(client, q, logger)
	mon := monitor.New(client, store, logger, monitor.WithDelay(monitor.FixedDelay(cfg.PollInterval)))
	ctrl := controller.New(q, executor, client, mon, logger)
	return &app{cfg: cfg, log: logger, store: store, ctrl: ctrl}, nil
}

func (a *app) Close() {
	a.ctrl.Close()
	_ = a.store.Close()
	_ = a.log.Sync()
}

func newUploadCmd() *cobra.Command {
	var (
		eventID int
		dateStr string
		docName string
		analyze bool
		watch   bool
	)
	cmd := &cobra.Command{
		Use:   "upload <file...>",
		Short: "Upload files, then optionally start and watch analysis",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			for _, addErr := range a.ctrl.AddFiles(args) {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped: %v\n", addErr)
			}
			items := a.ctrl.Queue().Items()
			if len(items) == 0 {
				return errors.New("no uploadable files")
			}

			if docName != "" {
				if len(items) > 1 {
					return errors.New("--name applies to a single file only")
				}
				a.ctrl.Queue().UpdateDisplayName(items[0].ID, docName)
			}
			if dateStr != "" {
				taken, err := parseDateFlag(dateStr)
				if err != nil {
					return err
				}
				for _, item := range items {
					a.ctrl.Queue().UpdateCaptureDate(item.ID, &taken)
				}
			}

			var event *int
			if cmd.Flags().Changed("event") {
				event = &eventID
			} else {
				event = a.cfg.EventID
			}

			ids, err := a.ctrl.Upload(ctx, event)
			if err != nil {
				return err
			}
			printOutcomes(cmd, a.ctrl.Queue().Items())

			if !analyze || len(ids) == 0 {
				if analyze {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to analyze")
				}
				return exitStatus(a.ctrl.Queue().Items())
			}
			if err := a.ctrl.Analyze(ctx, ids); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "analysis started for %d document(s)\n", len(ids))
			if watch {
				return watchUntilDone(cmd, a)
			}
			return exitStatus(a.ctrl.Queue().Items())
		},
	}
	cmd.Flags().IntVar(&eventID, "event", 0, "Event id to associate the uploads with")
	cmd.Flags().StringVar(&dateStr, "date", "", `Capture date override ("2006-01-02" or "2006-01-02 15:04:05")`)
	cmd.Flags().StringVar(&docName, "name", "", "Document name override (single file only)")
	cmd.Flags().BoolVar(&analyze, "analyze", false, "Start server-side analysis after uploading")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Block until the analysis batch completes (implies --analyze)")
	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		if watch {
			analyze = true
		}
	}
	return cmd
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Resume tracking a processing batch left by a previous run",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.ctrl.Resume(ctx); err != nil {
				return err
			}
			if len(a.ctrl.Tracking()) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no documents are being processed")
				return nil
			}
			return watchUntilDone(cmd, a)
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "One-shot check of the tracked processing batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			ids, err := a.store.Load()
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no documents are being processed")
				return nil
			}
			client := transport.NewClient(a.cfg.APIURL, a.cfg.HTTPTimeout, a.log)
			still, err := client.ProcessingStatus(ctx, ids)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tracked: %v\nstill processing: %v\n", ids, still)
			return nil
		},
	}
}

func watchUntilDone(cmd *cobra.Command, a *app) error {
	fmt.Fprintf(cmd.OutOrStdout(), "watching %d document(s)...\n", len(a.ctrl.Tracking()))
	a.ctrl.OnRefresh(func() {
		fmt.Fprintln(cmd.OutOrStdout(), "processing complete, documents are ready")
	})
	return a.ctrl.Wait(cmd.Context())
}

func printOutcomes(cmd *cobra.Command, items []model.UploadItem) {
	for _, item := range items {
		switch item.Status {
		case model.StatusSuccess:
			fmt.Fprintf(cmd.OutOrStdout(), "ok    %s (doc %d)\n", item.EffectiveName(), *item.AssignedDocID)
		case model.StatusError:
			fmt.Fprintf(cmd.OutOrStdout(), "fail  %s: %s\n", item.EffectiveName(), item.ErrorMessage)
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "%-5s %s\n", item.Status, item.EffectiveName())
		}
	}
}

func exitStatus(items []model.UploadItem) error {
	failed := 0
	for _, item := range items {
		if item.Status == model.StatusError {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d upload(s) failed", failed)
	}
	return nil
}

func parseDateFlag(value string) (time.Time, error) {
	for _, layout := range []string{model.CaptureDateLayout, "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}
