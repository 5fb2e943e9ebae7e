package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	devLogs    bool
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
	}

	rootCmd := &cobra.Command{
		Use:   "reflection-gate",
		Short: "Self-reflection quality gate for generated coaching responses",
		Long: `Reviews risky candidate responses with a secondary model before they
are delivered, and substitutes a safer revision when the reviewer finds issues.

Review failures never block delivery: the original response is returned and
the failure is recorded.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to reflection.yaml (default $REFLECTION_CONFIG_PATH or /app/config/reflection.yaml)")
	rootCmd.PersistentFlags().BoolVar(&devLogs, "dev", false, "Use human-readable development logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(evaluateCmd())
	rootCmd.AddCommand(checkConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
