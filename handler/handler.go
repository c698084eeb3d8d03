// Package handler runs the per-message pipeline: intermediate record in,
// compiled document mailed back out.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/emysliwietz/latex-email-daemon/compiler"
	"github.com/emysliwietz/latex-email-daemon/latex"
	"github.com/emysliwietz/latex-email-daemon/mailer"
	"github.com/emysliwietz/latex-email-daemon/model"
	"github.com/emysliwietz/latex-email-daemon/spool"
)

// fallbackBody stands in when a message has neither text nor HTML body.
const fallbackBody = "No body content"

// maxBaseNameLen bounds the sanitized subject used for artifact names.
const maxBaseNameLen = 50

type Options struct {
	// Template is the LaTeX document template; validated on New.
	Template string
	// OutputDir receives .tex sources and compiled PDFs.
	OutputDir string
	// BodyText is the text part of the outbound mail.
	BodyText string
	Compiler compiler.Compiler
	Sender   mailer.Sender
	Logger   *slog.Logger
}

type Handler struct {
	opts Options
}

func New(opts Options) (*Handler, error) {
	if err := latex.ValidateTemplate(opts.Template); err != nil {
		return nil, err
	}
	if opts.OutputDir == "" {
		return nil, fmt.Errorf("output directory is empty")
	}
	if opts.Compiler == nil {
		return nil, fmt.Errorf("compiler must not be nil")
	}
	if opts.Sender == nil {
		return nil, fmt.Errorf("sender must not be nil")
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &Handler{opts: opts}, nil
}

// HandleRecord processes one spooled record file. The record is deleted
// only after the message was fully compiled and delivered; on any failure
// it is retained for inspection and manual reprocessing.
func (h *Handler) HandleRecord(ctx context.Context, recordPath string) error {
	msg, err := spool.Read(recordPath)
	if err != nil {
		return err
	}
	if err := h.Handle(ctx, msg); err != nil {
		return err
	}
	return spool.Remove(recordPath)
}

// Handle renders, compiles and delivers one message.
func (h *Handler) Handle(ctx context.Context, msg *model.Message) error {
	recipients := msg.Recipients()
	if len(recipients) == 0 {
		return fmt.Errorf("message %d has no recipients", msg.UID)
	}

	bucket, err := segments(msg)
	if err != nil {
		return err
	}

	doc, err := latex.Assemble(h.opts.Template, latex.RenderRequest{
		Subject:    msg.Subject,
		Paragraphs: bucket,
	})
	if err != nil {
		return err
	}

	base := latex.SanitizeFilename(msg.Subject, maxBaseNameLen)
	texPath := h.uniqueTexPath(base)
	if err := os.WriteFile(texPath, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("write tex file: %w", err)
	}

	result, err := h.opts.Compiler.Compile(ctx, texPath, h.opts.OutputDir)
	if err != nil {
		return fmt.Errorf("compile %s: %w", texPath, err)
	}

	pdf, err := os.ReadFile(result.ArtifactPath)
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}

	subject := "PDF: " + msg.Subject
	attachment := mailer.Attachment{
		Filename: filepath.Base(result.ArtifactPath),
		Data:     pdf,
	}
	if err := h.opts.Sender.Send(ctx, recipients, subject, h.opts.BodyText, attachment); err != nil {
		return fmt.Errorf("send to %s: %w", strings.Join(recipients, ", "), err)
	}

	if h.opts.Logger != nil {
		h.opts.Logger.Info("document delivered", "uid", msg.UID, "recipients", len(recipients), "artifact", result.ArtifactPath)
	}

	h.cleanup(texPath)
	return nil
}

// segments builds the paragraph bucket for the preferred body.
func segments(msg *model.Message) (latex.Bucket, error) {
	body, isHTML := msg.Body()
	if body == "" {
		body = fallbackBody
	}
	if !isHTML {
		return latex.Segment(body), nil
	}

	converted, err := latex.ConvertHTML(body)
	if err != nil {
		return latex.Bucket{}, fmt.Errorf("convert html body: %w", err)
	}
	if converted == "" {
		return latex.Segment(fallbackBody), nil
	}
	return latex.SegmentLaTeX(converted), nil
}

// uniqueTexPath picks a source path whose .tex and .pdf counterparts both
// do not exist yet, suffixing a counter when needed.
func (h *Handler) uniqueTexPath(base string) string {
	candidate := base
	for counter := 1; ; counter++ {
		texPath := filepath.Join(h.opts.OutputDir, candidate+".tex")
		pdfPath := compiler.ArtifactPath(texPath, h.opts.OutputDir)
		if !exists(texPath) && !exists(pdfPath) {
			return texPath
		}
		candidate = fmt.Sprintf("%s_%d", base, counter)
	}
}

// cleanup removes the source, the compiled PDF and pdflatex auxiliary
// files after successful delivery.
func (h *Handler) cleanup(texPath string) {
	base := strings.TrimSuffix(texPath, ".tex")
	for _, ext := range []string{".aux", ".log", ".tex", ".pdf"} {
		path := base + ext
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			if h.opts.Logger != nil {
				h.opts.Logger.Warn("could not remove artifact", "path", path, "err", err)
			}
		}
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
