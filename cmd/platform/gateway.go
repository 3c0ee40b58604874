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

	"github.com/faaslocal/platform/pkg/gateway"
	"github.com/faaslocal/platform/pkg/log"
	"github.com/faaslocal/platform/pkg/registry"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the Gateway: route matching, auth, and per-function invocation",
	RunE: func(cmd *cobra.Command, args []string) error {
		routesPath, _ := cmd.Flags().GetString("routes")
		functionsPath, _ := cmd.Flags().GetString("functions")
		bindAddr, _ := cmd.Flags().GetString("bind-addr")
		orchestratorAddr, _ := cmd.Flags().GetString("orchestrator-addr")
		jwtSecret, _ := cmd.Flags().GetString("jwt-secret")
		tokenTTL, _ := cmd.Flags().GetDuration("token-ttl")
		heartbeatInterval, _ := cmd.Flags().GetDuration("heartbeat-interval")
		breakerMaxFailures, _ := cmd.Flags().GetInt("breaker-max-failures")
		breakerResetAfter, _ := cmd.Flags().GetDuration("breaker-reset-after")
		clientID, _ := cmd.Flags().GetString("client-id")
		clientSecret, _ := cmd.Flags().GetString("client-secret")
		invocationPort, _ := cmd.Flags().GetInt("invocation-port")
		invocationPath, _ := cmd.Flags().GetString("invocation-path")

		if jwtSecret == "" {
			return fmt.Errorf("--jwt-secret is required")
		}

		logger := log.WithComponent("gateway")

		reg, err := registry.Load(registry.Config{RoutesPath: routesPath, FunctionsPath: functionsPath})
		if err != nil {
			return fmt.Errorf("failed to load registry: %w", err)
		}

		orchClient := gateway.NewOrchestratorHTTPClient(orchestratorAddr, reg)

		breakerCfg := gateway.BreakerConfig{MaxFailures: breakerMaxFailures, ResetAfter: breakerResetAfter}
		pools := make(map[string]*gateway.Pool, len(reg.Functions()))
		breakers := make(map[string]*gateway.Breaker, len(reg.Functions()))
		for name, fd := range reg.Functions() {
			pools[name] = gateway.NewPool(name, fd.Scaling.MaxCapacity, orchClient)
			breakers[name] = gateway.NewBreaker(name, breakerCfg)
		}

		auth := gateway.NewAuthenticator([]byte(jwtSecret), map[string]string{clientID: clientSecret}, tokenTTL)

		janitor := gateway.NewJanitor(pools, orchClient, heartbeatInterval)
		janitor.Start()
		defer janitor.Stop()

		srv := gateway.NewServer(reg, auth, pools, breakers, invocationPort, invocationPath)
		httpSrv := &http.Server{
			Addr:    bindAddr,
			Handler: srv,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info().Str("addr", bindAddr).Int("functions", len(pools)).Msg("gateway listening")
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
	gatewayCmd.Flags().String("routes", "routes.yaml", "Path to the routes configuration file")
	gatewayCmd.Flags().String("functions", "functions.yaml", "Path to the functions configuration file")
	gatewayCmd.Flags().String("bind-addr", "0.0.0.0:8000", "Address the Gateway listens on")
	gatewayCmd.Flags().String("orchestrator-addr", "http://127.0.0.1:9000", "Base URL of the Orchestrator's internal HTTP API")
	gatewayCmd.Flags().String("jwt-secret", os.Getenv("PLATFORM_JWT_SECRET"), "HMAC secret used to sign bearer tokens (required)")
	gatewayCmd.Flags().Duration("token-ttl", time.Hour, "Bearer token lifetime")
	gatewayCmd.Flags().Duration("heartbeat-interval", 5*time.Second, "How often each pool's live containers are heartbeated to the Orchestrator")
	gatewayCmd.Flags().Int("breaker-max-failures", 5, "Consecutive failures before a function's circuit breaker opens")
	gatewayCmd.Flags().Duration("breaker-reset-after", 30*time.Second, "How long an open breaker waits before allowing a half-open probe")
	gatewayCmd.Flags().String("client-id", "default", "Static client ID accepted at /auth/token")
	gatewayCmd.Flags().String("client-secret", os.Getenv("PLATFORM_CLIENT_SECRET"), "Static client secret accepted at /auth/token")
	gatewayCmd.Flags().Int("invocation-port", 8080, "Fallback port for the invocation endpoint inside a container, used when a worker's own port is unset")
	gatewayCmd.Flags().String("invocation-path", "/", "Path of the invocation endpoint inside each container; must match the Orchestrator's --invocation-path")
}
