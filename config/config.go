// Package config loads the daemon configuration. Operational knobs come
// from CLI flags; account settings and credentials come from environment
// variables, optionally sourced from a dotenv file.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Config captures everything required to run the daemon.
type Config struct {
	IMAPHost             string
	IMAPPort             int
	EmailAccount         string
	EmailPassword        string
	TargetAddress        string
	AllowedSenderDomains []string

	SMTPHost           string
	SMTPPort           int
	SMTPSenderEmail    string
	SMTPSenderPassword string
	BodyText           string

	StateFile    string
	JSONDir      string
	PDFDir       string
	TemplateFile string

	IdleTimeout        time.Duration
	InsecureSkipVerify bool
	LogLevel           string
	LogDir             string
}

// RegisterFlags attaches the shared CLI flags to the provided command.
func RegisterFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("env-file", ".env", "Dotenv file with account settings and credentials")
	flags.String("state-file", "", "Path of the last-seen UID file (overrides STATE_FILE)")
	flags.String("json-dir", "", "Directory for intermediate message records (overrides JSON_DIR)")
	flags.String("pdf-dir", "", "Directory for tex sources and compiled PDFs (overrides PDF_DIR)")
	flags.String("template", "", "LaTeX template file (overrides LATEX_TEMPLATE_FILE)")
	flags.Duration("idle-timeout", 0, "Upper bound on one IDLE wait (overrides IDLE_TIMEOUT)")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for log files (in addition to stdout)")
}

// LoadConfig merges the dotenv file, the process environment and the
// parsed Cobra flags into a validated Config.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()

	envFile, err := flags.GetString("env-file")
	if err != nil {
		return Config{}, err
	}
	stateFile, err := flags.GetString("state-file")
	if err != nil {
		return Config{}, err
	}
	jsonDir, err := flags.GetString("json-dir")
	if err != nil {
		return Config{}, err
	}
	pdfDir, err := flags.GetString("pdf-dir")
	if err != nil {
		return Config{}, err
	}
	templateFile, err := flags.GetString("template")
	if err != nil {
		return Config{}, err
	}
	idleTimeout, err := flags.GetDuration("idle-timeout")
	if err != nil {
		return Config{}, err
	}
	insecureSkipVerify, err := flags.GetBool("insecure-skip-verify")
	if err != nil {
		return Config{}, err
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return Config{}, err
	}
	logDir, err := flags.GetString("log-dir")
	if err != nil {
		return Config{}, err
	}

	// Missing dotenv files are fine; the environment may already be set.
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	imapHost, imapPort, err := splitServer(os.Getenv("IMAP_SERVER"), 993)
	if err != nil {
		return Config{}, fmt.Errorf("IMAP_SERVER: %w", err)
	}
	smtpHost := os.Getenv("SMTP_SERVER")
	smtpPort := 587
	if v := os.Getenv("SMTP_PORT"); v != "" {
		smtpPort, err = strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("SMTP_PORT: %w", err)
		}
	}

	if stateFile == "" {
		stateFile = envOr("STATE_FILE", "last_seen_uid.txt")
	}
	if jsonDir == "" {
		jsonDir = envOr("JSON_DIR", "json")
	}
	if pdfDir == "" {
		pdfDir = envOr("PDF_DIR", "pdf")
	}
	if templateFile == "" {
		templateFile = envOr("LATEX_TEMPLATE_FILE", "template.tex")
	}
	if idleTimeout == 0 {
		idleTimeout = 5 * time.Minute
		if v := os.Getenv("IDLE_TIMEOUT"); v != "" {
			idleTimeout, err = time.ParseDuration(v)
			if err != nil {
				return Config{}, fmt.Errorf("IDLE_TIMEOUT: %w", err)
			}
		}
	}

	logLevel = strings.ToLower(logLevel)
	if logLevel == "warning" {
		logLevel = "warn"
	}

	cfg := Config{
		IMAPHost:             imapHost,
		IMAPPort:             imapPort,
		EmailAccount:         os.Getenv("EMAIL_ACCOUNT"),
		EmailPassword:        os.Getenv("EMAIL_PASSWORD"),
		TargetAddress:        os.Getenv("TARGET_ADDRESS"),
		AllowedSenderDomains: splitList(os.Getenv("ALLOWED_SENDER_DOMAIN")),
		SMTPHost:             smtpHost,
		SMTPPort:             smtpPort,
		SMTPSenderEmail:      os.Getenv("SMTP_SENDER_EMAIL"),
		SMTPSenderPassword:   os.Getenv("SMTP_SENDER_PASSWORD"),
		BodyText:             envOr("EMAIL_BODY_TEXT", "Attached is the requested PDF."),
		StateFile:            filepath.Clean(stateFile),
		JSONDir:              filepath.Clean(jsonDir),
		PDFDir:               filepath.Clean(pdfDir),
		TemplateFile:         filepath.Clean(templateFile),
		IdleTimeout:          idleTimeout,
		InsecureSkipVerify:   insecureSkipVerify,
		LogLevel:             logLevel,
		LogDir:               logDir,
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	if cfg.IMAPHost == "" {
		return fmt.Errorf("IMAP_SERVER must be set")
	}
	if cfg.EmailAccount == "" {
		return fmt.Errorf("EMAIL_ACCOUNT must be set")
	}
	if cfg.EmailPassword == "" {
		return fmt.Errorf("EMAIL_PASSWORD must be set")
	}
	if cfg.TargetAddress == "" {
		return fmt.Errorf("TARGET_ADDRESS must be set")
	}
	if cfg.SMTPHost == "" {
		return fmt.Errorf("SMTP_SERVER must be set")
	}
	if cfg.SMTPPort <= 0 || cfg.SMTPPort > 65535 {
		return fmt.Errorf("SMTP_PORT must be between 1 and 65535")
	}
	if cfg.SMTPSenderEmail == "" {
		return fmt.Errorf("SMTP_SENDER_EMAIL must be set")
	}
	if cfg.SMTPSenderPassword == "" {
		return fmt.Errorf("SMTP_SENDER_PASSWORD must be set")
	}
	if cfg.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}

// splitServer parses "host" or "host:port", falling back to defaultPort.
func splitServer(server string, defaultPort int) (string, int, error) {
	server = strings.TrimSpace(server)
	if server == "" {
		return "", defaultPort, nil
	}
	if !strings.Contains(server, ":") {
		return server, defaultPort, nil
	}
	host, portStr, err := net.SplitHostPort(server)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("port %q: %w", portStr, err)
	}
	return host, port, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
