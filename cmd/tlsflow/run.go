package main

import (
	"context"

	"tlsflow/config"
	"tlsflow/session/tls/common"
	"tlsflow/session/tls/relay"
	"tlsflow/session/tls/state"
	"tlsflow/session/tls/workflow"
	"tlsflow/transport"
	"tlsflow/transport/netconn"

	"github.com/spf13/cobra"
)

type runFlags struct {
	listen, connect string
	trace, out      string
}

func (f *runFlags) apply(cfg *config.Config) {
	override(&cfg.Listen, f.listen)
	override(&cfg.Connect, f.connect)
	override(&cfg.TraceFile, f.trace)
}

func newClientCommand(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Connect to a server and run a client trace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f.apply(&a.cfg)
			return a.runClient(cmd.Context(), f.out)
		},
	}
	cmd.Flags().StringVar(&f.connect, "connect", "", "server address, host:port")
	cmd.Flags().StringVar(&f.trace, "trace", "", "trace document to run instead of a full handshake")
	cmd.Flags().StringVar(&f.out, "out", "", "write the executed trace here, - for stdout")
	return cmd
}

func newServerCommand(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Accept one connection and run a server trace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f.apply(&a.cfg)
			return a.runServer(cmd.Context(), f.out)
		},
	}
	cmd.Flags().StringVar(&f.listen, "listen", "", "address to accept on")
	cmd.Flags().StringVar(&f.trace, "trace", "", "trace document to run instead of a full handshake")
	cmd.Flags().StringVar(&f.out, "out", "", "write the executed trace here, - for stdout")
	return cmd
}

func newRelayCommand(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Relay one client to a server, re-encrypting every message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f.apply(&a.cfg)
			return a.runRelay(cmd.Context(), f.out)
		},
	}
	cmd.Flags().StringVar(&f.listen, "listen", "", "address the client connects to")
	cmd.Flags().StringVar(&f.connect, "connect", "", "server address, host:port")
	cmd.Flags().StringVar(&f.trace, "trace", "", "trace document to relay instead of a full handshake")
	cmd.Flags().StringVar(&f.out, "out", "", "write the relayed trace here, - for stdout")
	return cmd
}

func (a *app) prepare(mode config.Mode) (*workflow.Trace, error) {
	a.cfg.Mode = mode
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	return a.trace(mode)
}

func (a *app) newContext(role common.Role, conn transport.Conn) (*state.Context, error) {
	cfg, err := a.cfg.State(role)
	if err != nil {
		return nil, err
	}
	port := transport.NewStreamPort(conn, transport.WithTimeout(a.cfg.Timeout))
	return state.New(cfg, port), nil
}

func (a *app) dial(ctx context.Context) (transport.Conn, error) {
	a.logger.Debug("dialing", "addr", a.cfg.Connect)
	return netconn.Dialer{Timeout: a.cfg.DialTimeout}.Dial(ctx, a.cfg.Connect)
}

// accept waits for a single connection on the listen address.
func (a *app) accept(ctx context.Context) (transport.Conn, error) {
	l, err := netconn.Listen("tcp", a.cfg.Listen)
	if err != nil {
		return nil, err
	}
	defer l.Close()

	a.logger.Info("waiting for a connection", "addr", l.Addr().String())
	conn, err := l.Accept(ctx)
	if err != nil {
		return nil, err
	}
	a.logger.Info("accepted", "peer", conn.RemoteAddr().String())
	return conn, nil
}

func (a *app) runClient(ctx context.Context, out string) error {
	trace, err := a.prepare(config.ModeClient)
	if err != nil {
		return err
	}

	conn, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	tlsCtx, err := a.newContext(common.RoleClient, conn)
	if err != nil {
		return err
	}
	return a.execute(ctx, trace, tlsCtx, out)
}

func (a *app) runServer(ctx context.Context, out string) error {
	trace, err := a.prepare(config.ModeServer)
	if err != nil {
		return err
	}

	conn, err := a.accept(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	tlsCtx, err := a.newContext(common.RoleServer, conn)
	if err != nil {
		return err
	}
	return a.execute(ctx, trace, tlsCtx, out)
}

func (a *app) execute(ctx context.Context, trace *workflow.Trace, tlsCtx *state.Context, out string) error {
	err := workflow.NewExecutor(a.logger, workflow.Options{}).ExecuteWorkflow(ctx, trace, tlsCtx)
	a.report(trace, err)
	if saveErr := a.save(out, trace); saveErr != nil && err == nil {
		err = saveErr
	}
	return err
}

func (a *app) runRelay(ctx context.Context, out string) error {
	trace, err := a.prepare(config.ModeRelay)
	if err != nil {
		return err
	}

	clientConn, err := a.accept(ctx)
	if err != nil {
		return err
	}
	defer clientConn.Close()

	serverConn, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer serverConn.Close()

	// The client facing end plays the server and needs its identity.
	clientFacing, err := a.newContext(common.RoleServer, clientConn)
	if err != nil {
		return err
	}
	serverFacing, err := a.newContext(common.RoleClient, serverConn)
	if err != nil {
		return err
	}

	err = relay.New(clientFacing, serverFacing, a.logger, relay.Options{}).Execute(ctx, trace)
	a.report(trace, err)
	if saveErr := a.save(out, trace); saveErr != nil && err == nil {
		err = saveErr
	}
	return err
}
