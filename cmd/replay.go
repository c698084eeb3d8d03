package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mboxlib "github.com/emersion/go-mbox"
	"github.com/spf13/cobra"

	"github.com/emysliwietz/latex-email-daemon/config"
	"github.com/emysliwietz/latex-email-daemon/filter"
	"github.com/emysliwietz/latex-email-daemon/parse"
	"github.com/emysliwietz/latex-email-daemon/progress"
	"github.com/emysliwietz/latex-email-daemon/spool"
	"github.com/emysliwietz/latex-email-daemon/stats"
)

var replayDryRun bool

var replayCmd = &cobra.Command{
	Use:   "replay [archive.mbox]",
	Short: "Run archived messages through the pipeline",
	Long: `Feeds every message of an mbox archive through the same filter and
compile-and-send pipeline the daemon uses for live mail. Useful for
backfilling an archive or rehearsing a template change with --dry-run.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cmd)
		if err != nil {
			return err
		}

		logger, cleanup, err := setupLogger(cfg)
		if err != nil {
			return err
		}
		defer func() {
			_ = cleanup()
		}()
		slog.SetDefault(logger)

		return runReplay(cfg, logger, args[0])
	},
}

func init() {
	replayCmd.Flags().BoolVar(&replayDryRun, "dry-run", false, "Only report which messages would be handled")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cfg config.Config, logger *slog.Logger, archivePath string) error {
	f, err := filter.New(filter.Options{
		TargetAddress:        cfg.TargetAddress,
		AllowedSenderDomains: cfg.AllowedSenderDomains,
	})
	if err != nil {
		return fmt.Errorf("filter.New: %w", err)
	}
	sp, err := spool.New(cfg.JSONDir)
	if err != nil {
		return fmt.Errorf("spool.New: %w", err)
	}

	h, err := buildHandler(cfg, logger)
	if err != nil {
		return err
	}

	total, err := countMessages(archivePath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream := stats.NewStream(ctx)
	reporter := stats.NewReporter(stream, logger)
	bar := progress.New(total, cfg.LogLevel)
	stream.Subscribe("progress", logger, bar.Subscriber)

	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	reader := mboxlib.NewReader(file)
	for seq := uint32(1); ; seq++ {
		if ctx.Err() != nil {
			break
		}

		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("message %d: %w", seq, err)
		}
		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return fmt.Errorf("message %d read: %w", seq, err)
		}

		stream.Emit(stats.Event{Stage: stats.StageReplay, Type: stats.EventTypeFetched, UID: seq})

		msg, err := parse.Message(seq, raw)
		if err != nil {
			logger.Warn("failed to parse archived message", "seq", seq, "err", err)
			stream.Emit(stats.Event{Stage: stats.StageReplay, Type: stats.EventTypeSkipped, UID: seq, Err: err})
			continue
		}
		if !f.Allows(msg) {
			stream.Emit(stats.Event{Stage: stats.StageReplay, Type: stats.EventTypeFiltered, UID: seq})
			continue
		}

		if replayDryRun {
			logger.Info("would handle message", "seq", seq, "subject", msg.Subject)
			stream.Emit(stats.Event{Stage: stats.StageReplay, Type: stats.EventTypeHandled, UID: seq})
			continue
		}

		recordPath, err := sp.Write(msg)
		if err != nil {
			stream.Emit(stats.Event{Stage: stats.StageReplay, Type: stats.EventTypeError, UID: seq, Err: err})
			continue
		}
		if err := h.HandleRecord(ctx, recordPath); err != nil {
			logger.Warn("handler failed, record retained", "seq", seq, "record", recordPath, "err", err)
			stream.Emit(stats.Event{Stage: stats.StageReplay, Type: stats.EventTypeFailed, UID: seq, Err: err})
			continue
		}
		stream.Emit(stats.Event{Stage: stats.StageReplay, Type: stats.EventTypeHandled, UID: seq})
	}

	stream.Close()
	bar.Stop()

	if summary := reporter.Summary(); summary.Failed > 0 {
		return fmt.Errorf("%d messages failed, records retained in %s", summary.Failed, cfg.JSONDir)
	}
	return nil
}

func countMessages(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	reader := mboxlib.NewReader(file)
	count := 0
	for {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			return 0, fmt.Errorf("count messages: %w", err)
		}
		if _, err := io.Copy(io.Discard, msgReader); err != nil {
			return 0, fmt.Errorf("count messages: %w", err)
		}
		count++
	}
}
