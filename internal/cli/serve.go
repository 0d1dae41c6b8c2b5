package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ragqa/internal/app"
	"ragqa/internal/domain"
	"ragqa/internal/httpapi"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the upload and query HTTP API",
	Long: `Start the HTTP API. Documents already in the documents directory are
indexed at startup; each upload replaces them and rebuilds the index.

Endpoints:
  POST /upload   multipart form, field "files"
  POST /query    JSON {"query": "..."}
  GET  /health   index stats

Examples:
  ragqa serve
  ragqa serve --addr :9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	a, err := app.Build(ctx, cfg, GetRootDir(), log)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := startupIndex(ctx, a); err != nil {
		return err
	}

	srv := httpapi.NewServer(a.QA, cfg.Server, log)
	for name, guard := range a.Guards {
		srv.WithBreaker(name, guard)
	}
	return srv.Run(ctx)
}

// startupIndex indexes existing documents. Only service failures are
// fatal; an empty directory just waits for the first upload.
func startupIndex(ctx context.Context, a *app.App) error {
	report, err := a.QA.Rebuild(ctx, nil)
	var ec *domain.EmptyCorpusError
	switch {
	case errors.As(err, &ec):
		log.WithField("reason", ec.Error()).Info("no documents indexed at startup")
		return nil
	case err != nil:
		return fmt.Errorf("startup indexing failed: %w", err)
	}
	log.WithField("documents", report.Documents).WithField("chunks", report.Chunks).Info("startup index ready")
	return nil
}
