package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/faaslocal/platform/pkg/log"
	"github.com/faaslocal/platform/pkg/orchestrator"
	"github.com/faaslocal/platform/pkg/reconciler"
	"github.com/faaslocal/platform/pkg/runtime"
)

var orchestratorCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Run the Orchestrator: container lifecycle over a local containerd socket",
	RunE: func(cmd *cobra.Command, args []string) error {
		containerdSocket, _ := cmd.Root().PersistentFlags().GetString("containerd-socket")

		bindAddr, _ := cmd.Flags().GetString("bind-addr")
		workers, _ := cmd.Flags().GetInt("offload-workers")
		invocationPort, _ := cmd.Flags().GetInt("invocation-port")
		invocationPath, _ := cmd.Flags().GetString("invocation-path")
		readinessTimeout, _ := cmd.Flags().GetDuration("readiness-timeout")
		readinessInterval, _ := cmd.Flags().GetDuration("readiness-interval")
		idleTimeout, _ := cmd.Flags().GetDuration("idle-timeout")
		reapInterval, _ := cmd.Flags().GetDuration("reap-interval")

		logger := log.WithComponent("orchestrator")

		driver, err := runtime.NewContainerdRuntime(containerdSocket)
		if err != nil {
			return fmt.Errorf("failed to connect to containerd: %w", err)
		}
		defer driver.Close()

		offloader := runtime.NewOffloader(workers)
		defer offloader.Close()

		orch := orchestrator.New(driver, offloader, orchestrator.Config{
			InvocationPort:    invocationPort,
			InvocationPath:    invocationPath,
			ReadinessTimeout:  readinessTimeout,
			ReadinessInterval: readinessInterval,
			IdleTimeout:       idleTimeout,
		})

		startupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := orch.StartupReconcile(startupCtx); err != nil {
			cancel()
			return fmt.Errorf("startup reconciliation failed: %w", err)
		}
		cancel()
		logger.Info().Msg("startup reconciliation complete")

		recon := reconciler.New(orch, reapInterval)
		recon.Start()
		defer recon.Stop()

		httpSrv := &http.Server{
			Addr:    bindAddr,
			Handler: orchestrator.NewServer(orch),
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info().Str("addr", bindAddr).Msg("orchestrator listening")
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			logger.Info().Msg("shutting down")
		case err := <-errCh:
			logger.Error().Err(err).Msg("http server error")
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpSrv.Shutdown(shutdownCtx)
	},
}

func init() {
	orchestratorCmd.Flags().String("bind-addr", "127.0.0.1:9000", "Address the Orchestrator's internal HTTP API listens on")
	orchestratorCmd.Flags().Int("offload-workers", 4, "Number of goroutines offloading blocking containerd calls")
	orchestratorCmd.Flags().Int("invocation-port", 8080, "Port the invocation endpoint listens on inside each container")
	orchestratorCmd.Flags().String("invocation-path", "/", "Path of the invocation endpoint inside each container")
	orchestratorCmd.Flags().Duration("readiness-timeout", 30*time.Second, "How long to wait for a newly started container to answer a ping")
	orchestratorCmd.Flags().Duration("readiness-interval", 500*time.Millisecond, "Poll interval between readiness pings")
	orchestratorCmd.Flags().Duration("idle-timeout", 5*time.Minute, "How long a container may go without a heartbeat before the reaper removes it")
	orchestratorCmd.Flags().Duration("reap-interval", 30*time.Second, "How often the idle reaper sweeps")
}
