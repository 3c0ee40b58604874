package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/faaslocal/platform/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "platform",
	Short: "A local, self-contained emulator of a managed function-as-a-service platform",
	Long: `platform runs the two processes that make up the emulator: the
Gateway, which terminates requests and proxies them into per-function
worker pools, and the Orchestrator, which owns container lifecycle on
a local containerd socket.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"platform version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("containerd-socket", "", "containerd socket path (defaults to /run/containerd/containerd.sock)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(orchestratorCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
