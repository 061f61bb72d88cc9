package ashareinsight

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ashareinsight/ashareinsight/pkg/server"
	"github.com/ashareinsight/ashareinsight/pkg/server/handlers"
	"github.com/ashareinsight/ashareinsight/pkg/utils"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP search service",
	Long: `Serve starts C9's HTTP surface: the similarity-search endpoint plus
liveness and readiness probes, shutting down gracefully on SIGINT/SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.store.Close()

	searchHandler := handlers.NewSearchHandler(a.retrieval, a.log)
	healthHandler := handlers.NewHealthHandler(a.store, a.market)
	srv := server.New(a.cfg.Server, searchHandler, healthHandler, a.log)

	errCh := make(chan error, 1)
	utils.SafeGo(func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}, func(err error) {
		errCh <- err
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		a.log.Info("received shutdown signal", "signal", sig.String())
		if err := srv.Shutdown(context.Background()); err != nil {
			return err
		}
		return <-errCh
	}
}
