package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/book-expert/voice-outreach/internal/app"
)

func newHealthCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the speech service accepts the configured credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return checkHealth(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
}

func checkHealth(ctx context.Context, out io.Writer, opts *cliOptions) error {
	env, err := setup(opts)
	if err != nil {
		return err
	}
	defer env.close()

	client, err := app.NewSpeechClient(env.cfg, env.secrets)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	err = client.HealthCheck(ctx)
	if err != nil {
		env.log.Error("Health check failed: %v", err)

		return fmt.Errorf("speech service is not healthy: %w", err)
	}

	fmt.Fprintln(out, "Speech service is healthy")

	return nil
}
