package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/config"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/models"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/pricing"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/ratecontrol"
)

func checkConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the configuration, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			r := cfg.Reflection
			provider := cfg.Reviewer.Provider
			if provider == "" || provider == "auto" {
				provider = models.DetectProvider(r.ReviewModel) + " (detected)"
			}
			limit := ratecontrol.LimitForReviews()
			price := "not listed, default pricing applies"
			if perToken, ok := pricing.PricePerTokenForModel(r.ReviewModel); ok {
				price = fmt.Sprintf("$%.6f per 1K tokens (blended)", perToken*1000)
			}

			fmt.Fprintf(w, "configuration OK (file loaded: %v)\n", config.UsedFile(configPath))
			fmt.Fprintf(w, "  enabled:            %v\n", r.Enabled)
			fmt.Fprintf(w, "  review model:       %s\n", r.ReviewModel)
			fmt.Fprintf(w, "  provider:           %s\n", provider)
			fmt.Fprintf(w, "  trigger tools:      %s\n", strings.Join(r.TriggerTools, ", "))
			fmt.Fprintf(w, "  trigger patterns:   %d\n", len(r.TriggerContentPatterns))
			fmt.Fprintf(w, "  min length:         %d\n", r.MinResponseLength)
			fmt.Fprintf(w, "  timeout:            %s\n", r.Timeout())
			fmt.Fprintf(w, "  review rate limit:  %d rpm / %d tpm\n", limit.RPM, limit.TPM)
			fmt.Fprintf(w, "  review price:       %s\n", price)
			fmt.Fprintf(w, "  pricing source:     %s\n", pricing.Source())
			fmt.Fprintf(w, "  outcome stream:     %v\n", cfg.Streaming.Enabled)
			return nil
		},
	}
}
