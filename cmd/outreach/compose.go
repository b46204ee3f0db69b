package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/book-expert/voice-outreach/internal/app"
	"github.com/book-expert/voice-outreach/internal/pipeline"
)

func newComposeCommand(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Compose and print the message of every lead without synthesizing audio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return composeOnly(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	addLeadsFlags(cmd, opts)
	addComposerFlags(cmd, opts)

	return cmd
}

func composeOnly(ctx context.Context, out io.Writer, opts *cliOptions) error {
	env, err := setup(opts)
	if err != nil {
		return err
	}
	defer env.close()

	records, err := loadLeads(opts, env.log)
	if err != nil {
		return err
	}

	composer, err := app.NewComposer(env.cfg, env.secrets)
	if err != nil {
		return err
	}

	session, err := pipeline.New(pipeline.Options{
		Composer: composer,
		Limiter:  pipeline.NewLimiter(env.cfg.Synthesis.RequestsPerMinute),
		Logger:   env.log,
	})
	if err != nil {
		return err
	}

	session.LoadRows(records)

	err = session.ComposeMessages(ctx)
	if err != nil {
		return err
	}

	result := session.Result()
	printMessages(out, result.Messages)
	printWarnings(out, result.Warnings)

	return nil
}
