package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"tlsflow/config"
	"tlsflow/session/tls/common"
	"tlsflow/session/tls/common/ciphersuite"
	"tlsflow/session/tls/workflow"

	"github.com/lmittmann/tint"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// app is what every subcommand shares: the merged configuration and the
// logger built from it.
type app struct {
	out io.Writer

	configFile string
	logLevel   string

	cfg    config.Config
	logger *slog.Logger
}

func newRootCommand(out io.Writer) *cobra.Command {
	a := &app{out: out, cfg: config.Default()}

	root := &cobra.Command{
		Use:           "tlsflow",
		Short:         "Run scripted TLS handshakes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "TOML configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		newClientCommand(a),
		newServerCommand(a),
		newRelayCommand(a),
		newTraceCommand(a),
	)
	return root
}

// runRoot executes root and logs the error that stopped it. Errors are
// silenced inside cobra so each one is reported exactly once, here.
func runRoot(ctx context.Context, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	if err != nil {
		newLogger(root.ErrOrStderr(), slog.LevelError).Error("tlsflow failed", "error", err.Error())
	}
	return err
}

func newLogger(w io.Writer, lvl slog.Level) *slog.Logger {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !term.IsTerminal(int(f.Fd()))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      lvl,
		NoColor:    noColor,
		TimeFormat: time.TimeOnly,
	}))
}

func (a *app) setup(stderr io.Writer) error {
	if a.configFile != "" {
		cfg, err := config.Load(a.configFile)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}
	if a.logLevel != "" {
		a.cfg.LogLevel = a.logLevel
	}

	lvl, err := a.cfg.Level()
	if err != nil {
		return err
	}
	a.logger = newLogger(stderr, lvl)
	return nil
}

// override copies a flag value over the configuration when it was given.
func override(dst *string, flag string) {
	if flag != "" {
		*dst = flag
	}
}

// keyExchange is the key exchange of the most preferred suite. Default
// traces are built for it.
func (a *app) keyExchange() (ciphersuite.KeyExchange, error) {
	ids, err := a.cfg.CipherSuites()
	if err != nil {
		return 0, err
	}
	s, _ := ciphersuite.Get(ids[0])
	return s.KeyExchange(), nil
}

// trace loads the configured trace file, or builds the default trace for
// mode.
func (a *app) trace(mode config.Mode) (*workflow.Trace, error) {
	if a.cfg.TraceFile != "" {
		f, err := os.Open(a.cfg.TraceFile)
		if err != nil {
			return nil, errors.Wrap(common.ErrConfiguration, err.Error())
		}
		defer f.Close()
		return workflow.Load(f)
	}

	kx, err := a.keyExchange()
	if err != nil {
		return nil, err
	}
	var data []byte
	if a.cfg.ApplicationData != "" {
		data = []byte(a.cfg.ApplicationData)
	}

	if mode == config.ModeRelay {
		return workflow.RelayTrace(kx, data), nil
	}
	return workflow.HandshakeTrace(mode.Role(), kx, data), nil
}

// save writes trace to path, or to standard output for "-".
func (a *app) save(path string, trace *workflow.Trace) error {
	if path == "" {
		return nil
	}
	if path == "-" {
		return workflow.Save(a.out, trace)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "saving trace")
	}
	if err := workflow.Save(f, trace); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "saving trace")
}

func (a *app) report(trace *workflow.Trace, err error) {
	attrs := []any{
		"actions", trace.Len(),
		"as_planned", trace.ExecutedAsPlanned(),
	}
	if err != nil {
		// The error itself is logged once by runRoot.
		a.logger.Warn("workflow stopped", attrs...)
		return
	}
	a.logger.Info("workflow finished", attrs...)
}
