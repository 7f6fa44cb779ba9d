// Handles the "srkstore serve" command
package cmd

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/serverlessresearch/srkstore/pkg/telemetry"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the storage server",
	Long: `Serve the storage API over gRPC for every bucket in the configuration,
along with an HTTP gateway for presigned URLs of the local backend, health
checks and Prometheus metrics. Stops cleanly on ctrl-c or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := srkManager.Cfg
		log := srkManager.Logger

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		servers, err := srkManager.NewServers(telemetry.NewMetrics(reg))
		if err != nil {
			return errors.Wrap(err, "failed to set up servers")
		}

		grpcAddr := cfg.GetString("server.address")
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return errors.Wrapf(err, "failed to listen on %s", grpcAddr)
		}
		httpServer := &http.Server{
			Addr:              cfg.GetString("gateway.address"),
			Handler:           servers.Gateway,
			ReadHeaderTimeout: 15 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		errCh := make(chan error, 2)
		go func() {
			log.WithField("address", lis.Addr().String()).Info("Storage server listening")
			if err := servers.GRPC.Serve(lis); err != nil {
				errCh <- errors.Wrap(err, "gRPC server failed")
			}
		}()
		go func() {
			log.WithField("address", httpServer.Addr).Info("Gateway listening")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- errors.Wrap(err, "gateway failed")
			}
		}()

		// Shutdown cleanly on ctrl-c or sigterm from kill
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		var serveErr error
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig.String()).Info("Shutting down")
		case serveErr = <-errCh:
			log.Error(serveErr)
		}

		// health checks report NOT_SERVING while connections drain
		servers.Health.Shutdown()
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Warnf("gateway shutdown: %v", err)
		}

		stopped := make(chan struct{})
		go func() {
			servers.GRPC.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			servers.GRPC.Stop()
		}
		return serveErr
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
