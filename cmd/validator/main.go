// Command validator asks a language model to check a research article for
// accuracy and academic quality and prints its 1-5 rating.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/term"

	"researchagent/pkg/agent"
	"researchagent/pkg/agent/llmerrors"
	"researchagent/pkg/agent/middleware/metrics"
	"researchagent/pkg/config"
	"researchagent/pkg/logx"
	"researchagent/pkg/version"
)

// EnvSecretsPassword supplies the secrets file password non-interactively.
const EnvSecretsPassword = "VALIDATOR_SECRETS_PASSWORD"

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type options struct {
	topic          string
	articlePath    string
	configPath     string
	envFile        string
	secretsFile    string
	encryptSecrets string
	maxRetries     int
	quiet          bool
	showVersion    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	exitCode := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(exitCode)
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("validator", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.topic, "topic", "", "Research topic the article is about (required)")
	fs.StringVar(&opts.articlePath, "article", "", "Article file path, or - for stdin (default: stdin when piped)")
	fs.StringVar(&opts.configPath, "config", "", "YAML config file (optional)")
	fs.StringVar(&opts.envFile, "env-file", "", "Env file to load (default: search for .env upward from the working directory)")
	fs.StringVar(&opts.secretsFile, "secrets-file", "", "Encrypted secrets file (overrides secrets.file)")
	fs.StringVar(&opts.encryptSecrets, "encrypt-secrets", "", "Encrypt this plaintext JSON map into -secrets-file and exit")
	fs.IntVar(&opts.maxRetries, "max-retries", -1, "Retry cycles before giving up (default: from config, 2)")
	fs.BoolVar(&opts.quiet, "quiet", false, "Only log warnings and errors")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version information")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage:\n  validator -topic <topic> [-article <file>|-] [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err //nolint:wrapcheck // flag package already printed the problem
	}
	return opts, nil
}

// run contains the main application logic and returns an exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if opts.showVersion {
		fmt.Fprintf(stdout, "validator %s\n", version.String())
		return exitOK
	}

	if _, err := config.LoadDotEnv(opts.envFile); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	if opts.encryptSecrets != "" {
		if err := encryptSecrets(opts, stdin); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
		fmt.Fprintf(stdout, "Secrets written to %s\n", opts.secretsFile)
		return exitOK
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	applyFlags(cfg, opts)
	configureLogging(cfg, stderr)

	if strings.TrimSpace(opts.topic) == "" {
		fmt.Fprintf(stderr, "Error: -topic is required\n")
		return exitUsage
	}

	article, err := readArticle(opts.articlePath, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	result, err := validate(ctx, cfg, opts.topic, article, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	fmt.Fprintln(stdout, result)
	return exitOK
}

func applyFlags(cfg *config.Config, opts *options) {
	if opts.maxRetries >= 0 {
		cfg.Agents.Validator.MaxRetries = opts.maxRetries
	}
	if opts.quiet {
		cfg.Agents.Validator.Verbose = false
		cfg.Log.Level = string(logx.LevelWarn)
	}
	if opts.secretsFile != "" {
		cfg.Secrets.File = opts.secretsFile
	}
}

func configureLogging(cfg *config.Config, stderr io.Writer) {
	if logx.IsDebugEnabled() {
		return
	}
	level, err := logx.ParseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(stderr, "Warning: %v, using info\n", err)
	}
	logx.SetLevel(level)
}

func validate(ctx context.Context, cfg *config.Config, topic, article string, stdin io.Reader) (string, error) {
	secrets, err := loadSecrets(ctx, cfg, stdin)
	if err != nil {
		return "", err
	}

	apiKey, err := secrets.GetAPIKey(ctx, cfg.Provider)
	if err != nil {
		return "", err //nolint:wrapcheck // message already names the provider
	}

	registry := prometheus.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)

	factory, err := agent.NewFactory(agent.SettingsFromConfig(cfg, apiKey), agent.WithMetricsRecorder(recorder))
	if err != nil {
		return "", err //nolint:wrapcheck // factory errors are descriptive
	}
	client, err := factory.NewChatClient(agent.Config{
		Name:       agent.ValidatorName,
		MaxRetries: cfg.Agents.Validator.MaxRetries,
		Verbose:    cfg.Agents.Validator.Verbose,
	})
	if err != nil {
		return "", err //nolint:wrapcheck // config errors are descriptive
	}

	result, err := agent.NewValidatorAgent(client).Execute(ctx, topic, article)

	if cfg.Metrics.Textfile != "" {
		if writeErr := prometheus.WriteToTextfile(cfg.Metrics.Textfile, registry); writeErr != nil {
			logx.Warnf("failed to write metrics textfile %s: %v", cfg.Metrics.Textfile, writeErr)
		}
	}

	if llmerrors.IsRetriesExhausted(err) {
		return "", err //nolint:wrapcheck // terminal error is printed as is
	}
	if err != nil {
		return "", logx.Wrap(err, "validation failed")
	}
	return result, nil
}

func loadSecrets(ctx context.Context, cfg *config.Config, stdin io.Reader) (*config.Secrets, error) {
	var fileSecrets map[string]string
	if cfg.Secrets.File != "" {
		if !config.SecretsFileExists(cfg.Secrets.File) {
			return nil, fmt.Errorf("secrets file %s not found", cfg.Secrets.File)
		}
		password, err := secretsPassword(stdin, false)
		if err != nil {
			return nil, err
		}
		fileSecrets, err = config.DecryptSecretsFile(cfg.Secrets.File, password)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt %s: %w", cfg.Secrets.File, err)
		}
	}

	var remote config.TokenSource
	if cfg.Secrets.SSMParameter != "" {
		source, err := config.NewDefaultParamStoreSource(ctx, cfg.Secrets.SSMParameter)
		if err != nil {
			return nil, err //nolint:wrapcheck // paramstore errors are prefixed
		}
		remote = source
	}

	return config.NewSecrets(fileSecrets, remote), nil
}

func encryptSecrets(opts *options, stdin io.Reader) error {
	if opts.secretsFile == "" {
		return fmt.Errorf("-encrypt-secrets requires -secrets-file")
	}
	data, err := os.ReadFile(opts.encryptSecrets)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", opts.encryptSecrets, err)
	}
	var secrets map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return fmt.Errorf("%s must contain a JSON object of strings: %w", opts.encryptSecrets, err)
	}

	password, err := secretsPassword(stdin, true)
	if err != nil {
		return err
	}
	return config.EncryptSecretsFile(opts.secretsFile, password, secrets) //nolint:wrapcheck // already descriptive
}

// secretsPassword reads the password from the environment, or prompts on a
// terminal. confirm asks twice.
func secretsPassword(stdin io.Reader, confirm bool) (string, error) {
	if password := os.Getenv(EnvSecretsPassword); password != "" {
		return password, nil
	}

	fd, ok := terminalFd(stdin)
	if !ok {
		return "", fmt.Errorf("secrets file needs a password: set %s or run on a terminal", EnvSecretsPassword)
	}

	fmt.Fprint(os.Stderr, "Secrets password: ")
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if confirm {
		fmt.Fprint(os.Stderr, "Confirm password: ")
		again, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		if string(again) != string(password) {
			return "", fmt.Errorf("passwords do not match")
		}
	}
	return string(password), nil
}

func terminalFd(r io.Reader) (int, bool) {
	f, ok := r.(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(f.Fd()) //nolint:gosec // file descriptors fit in int
	return fd, term.IsTerminal(fd)
}

// readArticle reads the article from path, or from stdin for "-" or when no
// path is given and stdin is not a terminal.
func readArticle(path string, stdin io.Reader) (string, error) {
	if path != "" && path != "-" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read article: %w", err)
		}
		return string(data), nil
	}

	if path == "" {
		if _, isTerminal := terminalFd(stdin); isTerminal {
			return "", fmt.Errorf("no article given: pass -article <file> or pipe it on stdin")
		}
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read article from stdin: %w", err)
	}
	return string(data), nil
}
