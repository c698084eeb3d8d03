// Package cmd wires the CLI commands: the watch daemon, the single-record
// handler and the mbox replay.
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/emysliwietz/latex-email-daemon/config"
	"github.com/emysliwietz/latex-email-daemon/filter"
	"github.com/emysliwietz/latex-email-daemon/imapx"
	"github.com/emysliwietz/latex-email-daemon/latex"
	"github.com/emysliwietz/latex-email-daemon/spool"
	"github.com/emysliwietz/latex-email-daemon/state"
	"github.com/emysliwietz/latex-email-daemon/stats"
	"github.com/emysliwietz/latex-email-daemon/watcher"
)

var rootCmd = &cobra.Command{
	Use:   "latex-email-daemon",
	Short: "Watch a mailbox, typeset incoming mail with LaTeX and mail the PDF back",
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
		logger.Info("starting latex-email-daemon", "imap", cfg.IMAPHost, "target", cfg.TargetAddress, "mailbox", "INBOX")

		return runDaemon(cmd, cfg, logger)
	},
}

func init() {
	config.RegisterFlags(rootCmd)
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, cfg config.Config, logger *slog.Logger) error {
	// Fail fast on a broken template instead of at the first message.
	template, err := os.ReadFile(cfg.TemplateFile)
	if err != nil {
		return fmt.Errorf("read template: %w", err)
	}
	if err := latex.ValidateTemplate(string(template)); err != nil {
		return err
	}

	store, err := state.NewStore(cfg.StateFile)
	if err != nil {
		return fmt.Errorf("state.NewStore: %w", err)
	}
	sp, err := spool.New(cfg.JSONDir)
	if err != nil {
		return fmt.Errorf("spool.New: %w", err)
	}
	f, err := filter.New(filter.Options{
		TargetAddress:        cfg.TargetAddress,
		AllowedSenderDomains: cfg.AllowedSenderDomains,
	})
	if err != nil {
		return fmt.Errorf("filter.New: %w", err)
	}
	transport, err := imapx.NewTransport(imapx.Options{
		Host:               cfg.IMAPHost,
		Port:               cfg.IMAPPort,
		Username:           cfg.EmailAccount,
		Password:           cfg.EmailPassword,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		Logger:             logger,
	})
	if err != nil {
		return fmt.Errorf("imapx.NewTransport: %w", err)
	}

	binary, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate own binary: %w", err)
	}
	h := &subprocessHandler{
		binary: binary,
		args:   childArgs(cmd),
		logger: logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream := stats.NewStream(ctx)
	stats.NewReporter(stream, logger)

	w, err := watcher.New(watcher.Options{
		Transport:   transport,
		Filter:      f,
		Store:       store,
		Spool:       sp,
		Handler:     h,
		Stream:      stream,
		Logger:      logger,
		IdleTimeout: cfg.IdleTimeout,
	})
	if err != nil {
		return fmt.Errorf("watcher.New: %w", err)
	}

	err = w.Run(ctx)
	stream.Close()
	return err
}

// subprocessHandler compiles each record in a child process, so a
// crashing or runaway compile cannot take the watcher down with it.
type subprocessHandler struct {
	binary string
	args   []string
	logger *slog.Logger
}

func (h *subprocessHandler) Handle(ctx context.Context, recordPath string) error {
	args := append([]string{"handle"}, h.args...)
	args = append(args, recordPath)

	var output bytes.Buffer
	child := exec.CommandContext(ctx, h.binary, args...)
	child.Stdout = &output
	child.Stderr = &output

	if h.logger != nil {
		h.logger.Debug("handling record", "record", recordPath)
	}
	if err := child.Run(); err != nil {
		return fmt.Errorf("handle %s: %w\n%s", recordPath, err, output.String())
	}
	return nil
}

// childArgs forwards the shared flags the handle subcommand needs to
// rebuild the same configuration.
func childArgs(cmd *cobra.Command) []string {
	var args []string
	for _, name := range []string{"env-file", "pdf-dir", "template", "log-level", "log-dir"} {
		if flag := cmd.Flags().Lookup(name); flag != nil && flag.Changed {
			args = append(args, "--"+name, flag.Value.String())
		}
	}
	return args
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("latex-email-daemon-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}
