package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/book-expert/voice-outreach/internal/app"
	"github.com/book-expert/voice-outreach/internal/archive"
	"github.com/book-expert/voice-outreach/internal/fsutil"
	"github.com/book-expert/voice-outreach/internal/pipeline"
)

const artifactPermissions = 0o640

func newRunCommand(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compose, synthesize and archive one voice note per lead",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	addLeadsFlags(cmd, opts)
	addComposerFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.outDir, flagOut, "", flagOutDesc)
	cmd.Flags().BoolVar(&opts.publish, flagPublish, false, flagPublishDesc)

	return cmd
}

func runBatch(ctx context.Context, out io.Writer, opts *cliOptions) error {
	env, err := setup(opts)
	if err != nil {
		return err
	}
	defer env.close()

	records, err := loadLeads(opts, env.log)
	if err != nil {
		return err
	}

	session, err := app.NewSession(ctx, env.cfg, env.secrets, opts.publish, app.Deps{Logger: env.log})
	if err != nil {
		env.log.Error("Failed to create session: %v", err)

		return err
	}

	start := time.Now()

	result, err := session.Run(ctx, records, opts.publish)
	if err != nil {
		env.log.Error("Batch failed: %v", err)

		return fmt.Errorf("batch failed: %w", err)
	}

	err = saveResult(env.cfg.Paths.OutputDir, env.cfg.Paths.ArchiveName, result)
	if err != nil {
		env.log.Error("Failed to save output: %v", err)

		return err
	}

	if opts.verbose {
		printMessages(out, result.Messages)
	}

	archivePath := filepath.Join(env.cfg.Paths.OutputDir, env.cfg.Paths.ArchiveName)

	fmt.Fprintf(out, "Accepted %d of %d rows in %s\n",
		len(result.Artifacts), result.Rows, fsutil.FormatDuration(time.Since(start)))
	fmt.Fprintf(out, "Archive: %s (%s)\n", archivePath, fsutil.FormatFileSize(int64(len(result.Archive))))

	for _, link := range result.Links {
		fmt.Fprintf(out, "Link: %s %s\n", link.ArtifactID, link.URL)
	}

	printWarnings(out, result.Warnings)

	env.log.Info("Batch complete: %d artifacts written to %s", len(result.Artifacts), env.cfg.Paths.OutputDir)

	return nil
}

// saveResult writes each accepted voice note and the archive to outputDir.
func saveResult(outputDir, archiveName string, result pipeline.Result) error {
	err := fsutil.EnsureDir(outputDir)
	if err != nil {
		return err
	}

	for _, artifact := range result.Artifacts {
		path := filepath.Join(outputDir, artifact.FileName)

		writeErr := os.WriteFile(path, artifact.Data, artifactPermissions)
		if writeErr != nil {
			return fmt.Errorf("failed to write voice note %s: %w", path, writeErr)
		}
	}

	return archive.WriteFile(filepath.Join(outputDir, archiveName), result.Archive)
}

func printMessages(out io.Writer, messages []pipeline.Message) {
	for _, message := range messages {
		fmt.Fprintf(out, "--- row %d ---\n%s\n", message.Row, message.Text)
	}
}

func printWarnings(out io.Writer, warnings []pipeline.Warning) {
	if len(warnings) == 0 {
		return
	}

	fmt.Fprintf(out, "%d warnings:\n", len(warnings))

	for _, warning := range warnings {
		fmt.Fprintf(out, "  %s\n", warning)
	}
}
