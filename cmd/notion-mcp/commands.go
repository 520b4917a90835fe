package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/ggoodman/notion-mcp/auth"
	"github.com/ggoodman/notion-mcp/internal/config"
	"github.com/ggoodman/notion-mcp/internal/dispatch"
	"github.com/ggoodman/notion-mcp/internal/engine"
	"github.com/ggoodman/notion-mcp/internal/gateway"
	"github.com/ggoodman/notion-mcp/internal/logctx"
	"github.com/ggoodman/notion-mcp/mcp"
	"github.com/ggoodman/notion-mcp/stdio"
	"github.com/ggoodman/notion-mcp/streaminghttp"
)

// version is overridden at build time via ldflags.
var version = "dev"

// configPath holds the value of the --config flag.
var configPath string

const instructions = "Tools and resources operate on the pages and databases shared with the Notion integration. " +
	"Page content is exchanged as Markdown."

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.Version = version
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	rootCmd.AddCommand(stdioCmd, sseCmd)
}

var rootCmd = &cobra.Command{
	Use:   "notion-mcp",
	Short: "Serve a Notion workspace to MCP clients",
	Long: `notion-mcp bridges an MCP client and the Notion API. It exposes tools
for searching, reading and editing pages and databases, plus resources for
page content and recently edited pages.

Configuration comes from the environment (NOTION_API_KEY is required) and
optionally a YAML file passed with --config.`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve MCP over stdin/stdout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := setup()
		if err != nil {
			return err
		}
		h := stdio.NewHandler(app.engine, stdio.WithLogger(app.log))
		return h.Serve(ctx)
	},
}

var sseCmd = &cobra.Command{
	Use:   "sse",
	Short: "Serve MCP over HTTP with Server-Sent Events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := setup()
		if err != nil {
			return err
		}
		return serveSSE(ctx, app)
	},
}

type app struct {
	cfg    *config.Config
	log    *slog.Logger
	engine *engine.Engine
}

// setup loads configuration and wires the backend, dispatcher and engine.
func setup() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)

	client, err := gateway.New(cfg.Notion, gateway.WithLogger(log))
	if err != nil {
		return nil, err
	}
	d := dispatch.NewDispatcher(dispatch.Builtin(), dispatch.Env{
		Backend:        client,
		ParentFallback: cfg.Notion.ParentFallback,
	}, dispatch.WithLogger(log))

	e := engine.New(d,
		engine.WithLogger(log),
		engine.WithServerInfo(mcp.ImplementationInfo{Name: "notion-mcp", Title: "Notion", Version: version}),
		engine.WithInstructions(instructions),
	)
	return &app{cfg: cfg, log: log, engine: e}, nil
}

// newLogger builds the process logger. Output goes to stderr so stdout stays
// free for the stdio protocol.
func newLogger(lc config.Log) (*slog.Logger, error) {
	level, err := lc.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch lc.Format {
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(logctx.Handler{Handler: h}), nil
}

// interceptors returns the auth gate for the configured mode. No secret means
// no gate.
func interceptors(sc config.Server) []auth.Interceptor {
	if sc.AuthSecret == "" {
		return nil
	}
	if sc.AuthMode == "jwt" {
		return []auth.Interceptor{auth.JWT(sc.AuthHeader, sc.AuthSecret)}
	}
	return []auth.Interceptor{auth.StaticSecret(sc.AuthHeader, sc.AuthSecret)}
}

func serveSSE(ctx context.Context, a *app) error {
	sc := a.cfg.Server
	ics := interceptors(sc)
	if len(ics) == 0 {
		a.log.Warn("server.auth.disabled", slog.String("hint", "set MCP_AUTH_SECRET to require a credential"))
	}

	h := streaminghttp.New(a.engine,
		streaminghttp.WithLogger(a.log),
		streaminghttp.WithPath(sc.Path),
		streaminghttp.WithInterceptors(ics...),
	)
	srv := &http.Server{Addr: sc.Addr(), Handler: h}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server.listen", slog.String("addr", sc.Addr()), slog.String("path", sc.Path), slog.String("auth_mode", sc.AuthMode))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}

	a.log.Info("server.shutdown.start")
	h.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), sc.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	a.log.Info("server.shutdown.done")
	return nil
}
