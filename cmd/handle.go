package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/emysliwietz/latex-email-daemon/compiler"
	"github.com/emysliwietz/latex-email-daemon/config"
	"github.com/emysliwietz/latex-email-daemon/handler"
	"github.com/emysliwietz/latex-email-daemon/mailer"
)

const (
	compileTimeout = 30 * time.Second
	smtpTimeout    = 30 * time.Second
	handleTimeout  = 2 * time.Minute
)

var handleCmd = &cobra.Command{
	Use:   "handle [record.json]",
	Short: "Compile and deliver one spooled message record",
	Long: `Reads one intermediate JSON record, renders it into the LaTeX template,
compiles it to PDF and mails the result back to the original sender set.
The record is deleted on success and retained on failure, so a failed run
can be retried by invoking handle again with the same path.`,
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

		h, err := buildHandler(cfg, logger)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), handleTimeout)
		defer cancel()
		return h.HandleRecord(ctx, args[0])
	},
}

func init() {
	rootCmd.AddCommand(handleCmd)
}

func buildHandler(cfg config.Config, logger *slog.Logger) (*handler.Handler, error) {
	template, err := os.ReadFile(cfg.TemplateFile)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}

	sender, err := mailer.NewSMTP(mailer.Options{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPSenderEmail,
		Password: cfg.SMTPSenderPassword,
		From:     cfg.SMTPSenderEmail,
		Timeout:  smtpTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("mailer.NewSMTP: %w", err)
	}

	return handler.New(handler.Options{
		Template:  string(template),
		OutputDir: cfg.PDFDir,
		BodyText:  cfg.BodyText,
		Compiler:  &compiler.PDFLatex{Timeout: compileTimeout},
		Sender:    sender,
		Logger:    logger,
	})
}
