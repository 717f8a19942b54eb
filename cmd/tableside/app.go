// file: cmd/tableside/app.go
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/tableside/internal/authclient"
	"github.com/dkoosis/tableside/internal/authflow"
	"github.com/dkoosis/tableside/internal/config"
	"github.com/dkoosis/tableside/internal/logging"
	"github.com/dkoosis/tableside/internal/metrics"
	"github.com/dkoosis/tableside/internal/schema"
	"github.com/dkoosis/tableside/internal/session"
	"golang.org/x/term"
)

// readPassword reads a secret without echo. Tests replace it.
var readPassword = term.ReadPassword

var errInputClosed = errors.New("input closed")

// streams are the terminal a command talks to.
type streams struct {
	in       io.Reader
	out      io.Writer
	terminal bool // in is an interactive terminal; secrets are read without echo.
}

func stdStreams() streams {
	return streams{in: os.Stdin, out: os.Stdout, terminal: term.IsTerminal(int(os.Stdin.Fd()))}
}

// app holds the wired dependencies of one command invocation.
type app struct {
	cfg       *config.Config
	logger    logging.Logger
	in        *bufio.Reader
	out       io.Writer
	terminal  bool
	validator *schema.Validator
	metrics   *metrics.Collector
	exporter  *metrics.Exporter
	client    authclient.Client
	backend   session.Backend
	store     *session.Store
}

// loadConfig reads path, or the default location when path is empty and a
// file exists there, or the built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if p := config.DefaultConfigPath(); fileExists(p) {
			path = p
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	return cfg, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// openApp loads configuration and wires the auth service client and session store.
func openApp(ctx context.Context, flags commonFlags, s streams) (*app, error) {
	cfg, err := loadConfig(flags.config)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg, flags)
	logger := logging.GetLogger("tableside")

	a := &app{
		cfg:      cfg,
		logger:   logger,
		in:       bufio.NewReader(s.in),
		out:      s.out,
		terminal: s.terminal,
		metrics:  metrics.NewCollector(16),
	}

	a.validator = schema.NewValidator(cfg.Schema, logger)
	if err := a.validator.Initialize(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to load auth service response schema")
	}

	if exp, err := metrics.RegisterGlobal(a.metrics); err != nil {
		logger.Warn("Metrics not exported.", "error", err)
	} else {
		a.exporter = exp
	}

	a.client, err = authclient.NewHTTPClient(cfg.AuthService,
		authclient.WithValidator(a.validator),
		authclient.WithMetrics(a.metrics),
		authclient.WithLogger(logger),
	)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "failed to create auth service client")
	}

	a.backend, err = session.NewBackend(cfg.Session, logger)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "failed to open session storage")
	}
	opts := []session.Option{session.WithLogger(logger)}
	if cfg.Session.VerifyKey != "" {
		v, err := session.NewVerifier(cfg.Session.VerifyAlgorithm, cfg.Session.VerifyKey)
		if err != nil {
			a.Close()
			return nil, errors.Wrap(err, "invalid session verify key")
		}
		opts = append(opts, session.WithVerifier(v))
	}
	a.store = session.NewStore(a.backend, opts...)
	return a, nil
}

// setupLogging applies the configured level; -debug overrides it.
func setupLogging(cfg *config.Config, flags commonFlags) {
	logging.SetupDefaultLogger(cfg.Logging.Level)
	if flags.debug {
		logging.SetLevel(logging.LevelDebug)
	}
}

// Close releases the metrics exporter and the schema validator.
func (a *app) Close() {
	if a.exporter != nil {
		if err := a.exporter.Close(); err != nil {
			a.logger.Debug("Failed to unregister metrics.", "error", err)
		}
	}
	if a.validator != nil {
		_ = a.validator.Shutdown()
	}
}

// newFlow creates a controller for entry, or the OAuth shortcut when entry is empty.
func (a *app) newFlow(entry authclient.Entry) (*authflow.Controller, error) {
	variant := authflow.VariantOAuthShortcut
	if entry != "" {
		v, err := authflow.VariantFor(entry)
		if err != nil {
			return nil, err
		}
		variant = v
	}
	flow, err := authflow.New(variant, a.client, a.store,
		authflow.WithEntry(entry),
		authflow.WithFlowConfig(a.cfg.Flow),
		authflow.WithLogger(a.logger),
		authflow.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, err
	}
	if logging.IsDebugEnabled() {
		flow.OnChange(func(s authflow.Snapshot) {
			a.logger.Debug("Flow changed.", "state", s.State, "cooldown", s.CooldownRemaining, "lastErrorKind", s.LastErrorKind)
		})
	}
	return flow, nil
}

// prompt prints label and reads one trimmed line.
func (a *app) prompt(label string) (string, error) {
	fmt.Fprintf(a.out, "%s: ", label)
	line, err := a.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		if err == io.EOF {
			return "", errInputClosed
		}
		return "", errors.Wrap(err, "failed to read input")
	}
	return strings.TrimSpace(line), nil
}

// secret reads a value without echo when attached to a terminal.
func (a *app) secret(label string) (string, error) {
	if !a.terminal {
		line, err := a.prompt(label)
		return line, err
	}
	fmt.Fprintf(a.out, "%s: ", label)
	b, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(a.out)
	if err != nil {
		return "", errors.Wrap(err, "failed to read password")
	}
	return string(b), nil
}

// newPassword reads a password twice until both entries agree.
func (a *app) newPassword(label string) (string, error) {
	for {
		first, err := a.secret(label)
		if err != nil {
			return "", err
		}
		second, err := a.secret("Confirm " + strings.ToLower(label))
		if err != nil {
			return "", err
		}
		if first != "" && first == second {
			return first, nil
		}
		fmt.Fprintln(a.out, "Passwords are empty or do not match. Try again.")
	}
}

// orPrompt returns value, or prompts for it when empty.
func (a *app) orPrompt(value, label string) (string, error) {
	if value != "" {
		return value, nil
	}
	return a.prompt(label)
}
