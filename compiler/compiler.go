// Package compiler invokes the external LaTeX toolchain and decides
// whether a compile actually produced the expected artifact.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrNotFound means the compiler binary is not installed.
	ErrNotFound = errors.New("latex compiler not found")
	// ErrNoArtifact means the compiler finished without producing the
	// expected output file. A zero exit status alone is not success.
	ErrNoArtifact = errors.New("compiler produced no output artifact")
	// ErrTimeout means the compile exceeded its deadline.
	ErrTimeout = errors.New("compile timed out")
)

// Result reports a successful compile.
type Result struct {
	ArtifactPath string
}

// Compiler turns a LaTeX source file into a rendered artifact.
type Compiler interface {
	Compile(ctx context.Context, texPath, outDir string) (Result, error)
}

// Oracle decides whether a compile run produced its artifact. The default
// checks file existence; it is an interface so a stronger check can be
// swapped in without touching the callers.
type Oracle interface {
	Produced(artifactPath string) bool
}

type fileOracle struct{}

func (fileOracle) Produced(artifactPath string) bool {
	info, err := os.Stat(artifactPath)
	return err == nil && !info.IsDir()
}

// PDFLatex runs pdflatex in non-stop mode under a bounded timeout.
type PDFLatex struct {
	// Command is the compiler binary, "pdflatex" when empty.
	Command string
	// Timeout bounds a single compile run.
	Timeout time.Duration
	// Oracle overrides the artifact check, file existence when nil.
	Oracle Oracle
}

func (p *PDFLatex) Compile(ctx context.Context, texPath, outDir string) (Result, error) {
	command := p.Command
	if command == "" {
		command = "pdflatex"
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	oracle := p.Oracle
	if oracle == nil {
		oracle = fileOracle{}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, command, "-interaction=nonstopmode", "-output-directory", outDir, texPath)
	output, runErr := cmd.CombinedOutput()

	artifact := ArtifactPath(texPath, outDir)
	if oracle.Produced(artifact) {
		return Result{ArtifactPath: artifact}, nil
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return Result{}, ErrTimeout
	case errors.Is(runErr, exec.ErrNotFound):
		return Result{}, fmt.Errorf("%w: %s", ErrNotFound, command)
	case runErr != nil:
		return Result{}, fmt.Errorf("%w: %s: %s", ErrNoArtifact, runErr, tail(output, 500))
	default:
		return Result{}, ErrNoArtifact
	}
}

// ArtifactPath returns where the compiler is expected to place the PDF for
// the given source file.
func ArtifactPath(texPath, outDir string) string {
	base := strings.TrimSuffix(filepath.Base(texPath), ".tex")
	return filepath.Join(outDir, base+".pdf")
}

func tail(output []byte, n int) string {
	s := strings.TrimSpace(string(output))
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
