package commands

import (
	"context"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dyluth/thinktank/internal/printer"
	"github.com/dyluth/thinktank/internal/server"
	"github.com/dyluth/thinktank/internal/watch"
)

var (
	serveAddr      string
	serveLogEvents bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pipeline over HTTP",
	Long: `Run the HTTP API until interrupted.

Routes:
  POST /v1/tanks/{address}/notes        submit a note
  GET  /v1/tanks/{address}              public tank state
  GET  /v1/tanks/{address}/submissions  recent submissions (needs a blackboard)
  POST /v1/transactions/verify          re-check a signed transaction
  GET  /healthz                         health
  GET  /metrics                         Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: server.addr)")
	serveCmd.Flags().BoolVar(&serveLogEvents, "log-events", false, "Log every recorded submission event (needs a blackboard)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	// A nil *blackboard.Client must not reach the History interface
	var history server.History
	if a.board != nil {
		history = a.board
	}

	srv, err := server.New(a.pipeline, a.reader, history, server.Config{
		Addr:    addr,
		ChainID: new(big.Int).SetUint64(cfg.Chain.ChainID),
	}, logger)
	if err != nil {
		return err
	}

	printer.Info("Serving on %s (Ctrl+C to stop)\n", addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	if serveLogEvents && a.board != nil {
		g.Go(func() error {
			return watch.Stream(gctx, a.board, nil, watch.OutputFormatJSON, zap.NewStdLog(logger.Named("events")).Writer(), os.Stderr)
		})
	}

	if err := g.Wait(); err != nil {
		return printer.Error("server stopped", err.Error(), nil)
	}
	printer.Success("Server stopped\n")
	return nil
}
