package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"choreline/internal/app"
	"choreline/internal/config"
	"choreline/internal/logging"
	"choreline/internal/metrics"
	"choreline/internal/server"
	"choreline/internal/uploads"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long:  "Start the HTTP API. Settings come from CHORELINE_* environment variables; flags override them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := config.LoadServerEnv()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				env.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				env.BasePath = basePath
			}
			if env.DevLogin && env.JWTSecret == "" {
				return fmt.Errorf("CHORELINE_JWT_SECRET is required when CHORELINE_DEV_LOGIN is set")
			}
			logger := logging.New(env.LogLevel, env.LogFormat)
			m := metrics.New()

			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				e := ws.Engine()
				e.Logger = logger
				e.Metrics = m
				handler, err := server.New(server.Config{
					Engine:   e,
					BasePath: env.BasePath,
					Auth: server.AuthConfig{
						JWTSecret:       env.JWTSecret,
						AllowUserHeader: env.AllowUserHeader,
						DevLogin:        env.DevLogin,
					},
					Uploads: uploads.Store{Dir: ws.UploadDir(), MaxBytes: ws.Config.Uploads.MaxBytes},
					Metrics: m,
					Logger:  logger,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: env.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				logger.Info("serving choreline api",
					slog.String("household", ws.Config.Household.Name),
					slog.String("addr", env.Addr),
					slog.String("base_path", env.BasePath),
					slog.Bool("user_header", env.AllowUserHeader),
					slog.Bool("dev_login", env.DevLogin),
				)
				fmt.Printf("Serving Choreline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", env.Addr, env.BasePath, env.BasePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}
