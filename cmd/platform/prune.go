package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/faaslocal/platform/pkg/log"
	"github.com/faaslocal/platform/pkg/runtime"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove every container this platform created, regardless of state",
	Long: `prune connects directly to containerd and force-removes every
container carrying the created_by=faaslocal-platform label. It does not
talk to a running Orchestrator and is meant for cleaning up a dev host
between runs, not for use while the Orchestrator is up.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		containerdSocket, _ := cmd.Root().PersistentFlags().GetString("containerd-socket")
		logger := log.WithComponent("prune")

		driver, err := runtime.NewContainerdRuntime(containerdSocket)
		if err != nil {
			return fmt.Errorf("failed to connect to containerd: %w", err)
		}
		defer driver.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := driver.PruneByLabel(ctx, runtime.CreatedByLabel, runtime.CreatedByValue); err != nil {
			return fmt.Errorf("prune failed: %w", err)
		}
		logger.Info().Msg("pruned all platform-managed containers")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}
