package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/config"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/httpapi"
	"github.com/Kocoro-lab/Shannon/go/reflectiongate/internal/reflection"
)

func evaluateCmd() *cobra.Command {
	var report bool
	var requestID string

	cmd := &cobra.Command{
		Use:   "evaluate [file]",
		Short: "Run the gate once on a JSON request and print the result",
		Long: `Reads a request of the form {"candidate": {...}, "context": {...}} from
the given file (or stdin when the file is "-" or omitted), runs the gate with
the configured policy and prints {"final_response", "outcome"} as JSON.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			req, err := readRequest(in)
			if err != nil {
				return err
			}
			if requestID != "" {
				req.RequestID = requestID
			}
			return evaluate(cmd.Context(), cfg, req, report, cmd.OutOrStdout(), logger)
		},
	}
	cmd.Flags().BoolVar(&report, "report", false, "Also write the outcome to the configured Redis stream")
	cmd.Flags().StringVar(&requestID, "request-id", "", "Request id to attach to the outcome")
	return cmd
}

func readRequest(r io.Reader) (httpapi.ReflectRequest, error) {
	var req httpapi.ReflectRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return req, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func evaluate(ctx context.Context, cfg config.Config, req httpapi.ReflectRequest, report bool, out io.Writer, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	comps, err := buildComponents(ctx, cfg, report, logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	if req.RequestID != "" {
		ctx = reflection.WithRequestID(ctx, req.RequestID)
	}
	final, outcome := comps.gate.Apply(ctx, req.Candidate, req.Context)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(httpapi.ReflectResponse{
		RequestID:     req.RequestID,
		FinalResponse: final,
		Outcome:       outcome,
	})
}
