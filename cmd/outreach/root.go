package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/logger"
	"github.com/spf13/cobra"

	"github.com/book-expert/voice-outreach/internal/app"
	"github.com/book-expert/voice-outreach/internal/config"
	"github.com/book-expert/voice-outreach/internal/leads"
)

// Flag names.
const (
	flagConfig       = "config"
	flagEnvFile      = "env-file"
	flagVerbose      = "verbose"
	flagLeads        = "leads"
	flagOut          = "out"
	flagMode         = "mode"
	flagTemplate     = "template"
	flagTemplateFile = "template-file"
	flagSender       = "sender"
	flagPublish      = "publish"
)

// Flag descriptions.
const (
	flagConfigDesc       = "Path to a TOML configuration file"
	flagEnvFileDesc      = "Path to a .env file with API credentials (defaults to ./.env when present)"
	flagVerboseDesc      = "Print every composed message and log to a verbose log file"
	flagLeadsDesc        = "CSV file with one lead per row"
	flagOutDesc          = "Output directory for voice notes (overrides paths.output_dir)"
	flagModeDesc         = "Composer mode: template or generate"
	flagTemplateDesc     = "Message template, or the generation prompt in generate mode"
	flagTemplateFileDesc = "File holding the message template or prompt"
	flagSenderDesc       = "Sender name used for {sender_name} and the signature"
	flagPublishDesc      = "Publish every voice note to the configured GitHub repository"
)

// File names.
const (
	logFileNameDefault = "outreach.log"
	logFileNameVerbose = "outreach-verbose.log"
)

const healthCheckTimeout = 10 * time.Second

var errLeadsRequired = errors.New("--leads is required")

// cliOptions holds the parsed command-line flag values.
type cliOptions struct {
	configPath   string
	envFile      string
	verbose      bool
	leadsPath    string
	outDir       string
	mode         string
	template     string
	templateFile string
	sender       string
	publish      bool
}

// environment is what every sub-command needs once flags are parsed.
type environment struct {
	cfg     config.Config
	secrets config.Secrets
	log     *logger.Logger
}

func newRootCommand() *cobra.Command {
	opts := &cliOptions{}

	cmd := &cobra.Command{
		Use:           "outreach",
		Short:         "Turn a lead table into personalized voice notes",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, flagConfig, "", flagConfigDesc)
	flags.StringVar(&opts.envFile, flagEnvFile, "", flagEnvFileDesc)
	flags.BoolVar(&opts.verbose, flagVerbose, false, flagVerboseDesc)

	cmd.AddCommand(
		newRunCommand(opts),
		newComposeCommand(opts),
		newVariablesCommand(opts),
		newHealthCommand(opts),
	)

	return cmd
}

// addLeadsFlags registers the flags shared by the commands that read a lead
// table.
func addLeadsFlags(cmd *cobra.Command, opts *cliOptions) {
	cmd.Flags().StringVar(&opts.leadsPath, flagLeads, "", flagLeadsDesc)
}

// addComposerFlags registers the flags that override the composer section.
func addComposerFlags(cmd *cobra.Command, opts *cliOptions) {
	flags := cmd.Flags()
	flags.StringVar(&opts.mode, flagMode, "", flagModeDesc)
	flags.StringVar(&opts.template, flagTemplate, "", flagTemplateDesc)
	flags.StringVar(&opts.templateFile, flagTemplateFile, "", flagTemplateFileDesc)
	flags.StringVar(&opts.sender, flagSender, "", flagSenderDesc)
}

// setup loads the configuration, applies flag overrides, loads credentials and
// opens the logger.
func setup(opts *cliOptions) (*environment, error) {
	loaded, err := config.LoadFile(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg := *loaded

	if opts.templateFile != "" {
		cfg.Composer.TemplateFile = opts.templateFile

		err = cfg.ResolveTemplate()
		if err != nil {
			return nil, err
		}
	}

	cfg = app.Overrides{
		Mode:       opts.mode,
		Template:   opts.template,
		SenderName: opts.sender,
	}.Apply(cfg)

	if opts.outDir != "" {
		cfg.Paths.OutputDir = opts.outDir
	}

	secrets, err := config.LoadSecrets(opts.envFile)
	if err != nil {
		return nil, err
	}

	cfg.MergeSecrets(secrets)

	logFileName := logFileNameDefault
	if opts.verbose {
		logFileName = logFileNameVerbose
	}

	log, err := logger.New(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return &environment{cfg: cfg, secrets: secrets, log: log}, nil
}

func (e *environment) close() {
	closeErr := e.log.Close()
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
	}
}

func loadLeads(opts *cliOptions, log *logger.Logger) ([]leads.Record, error) {
	if opts.leadsPath == "" {
		return nil, errLeadsRequired
	}

	records, err := leads.LoadFile(opts.leadsPath)
	if err != nil {
		log.Error("Failed to load leads: %v", err)

		return nil, err
	}

	log.Info("Loaded %d leads from %s", len(records), opts.leadsPath)

	return records, nil
}
