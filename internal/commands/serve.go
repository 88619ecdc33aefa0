package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/comigor/sonar-go/internal/logger"
	"github.com/comigor/sonar-go/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve one conversation over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		serverAddr := fmt.Sprintf("%s:%s", a.cfg.Server.Host, a.cfg.Server.Port)
		srv := &http.Server{Addr: serverAddr, Handler: server.New(a.ctrl)}

		go func() {
			<-cmd.Context().Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.L.Warn("server shutdown error", "error", err)
			}
		}()

		logger.L.Info("starting server", "address", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L.Error("failed to start server", "error", err)
			return err
		}
		return nil
	},
}
