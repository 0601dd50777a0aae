package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/stackvity/dirhash/internal/cli/output"
	"github.com/stackvity/dirhash/pkg/dirhash"
)

const (
	EnvPrefix         = "DIRHASH"
	DefaultConfigName = "dirhash"

	DefaultTuiEnabled = true
	DefaultTimeout    = "0s"
)

// logOutput is where the CLI logger writes. Tests replace it.
var logOutput io.Writer = os.Stderr

// Settings is the merged CLI configuration: the library Options plus the
// presentation settings only the command line cares about.
type Settings struct {
	dirhash.Options `mapstructure:",squash"`

	Verbose       bool          `mapstructure:"verbose"`
	TuiEnabled    bool          `mapstructure:"tuiEnabled"`
	OutputFormat  output.Format `mapstructure:"outputFormat"`
	TimeoutString string        `mapstructure:"timeout"`

	// --- Derived ---
	Timeout        time.Duration `mapstructure:"-"` // 0 disables the deadline
	ConfigFilePath string        `mapstructure:"-"`
	ProfileName    string        `mapstructure:"-"`
	AppVersion     string        `mapstructure:"-"`
}

// flagKeys maps config keys to the flag that overrides them.
var flagKeys = map[string]string{
	"root":         "root",
	"concurrency":  "concurrency",
	"algorithm":    "algorithm",
	"symlinks":     "symlinks",
	"maxFileSize":  "max-file-size",
	"ignore":       "ignore",
	"gitignore":    "gitignore",
	"verbose":      "verbose",
	"outputFormat": "output-format",
	"timeout":      "timeout",
}

// DefineFlags registers every flag LoadAndValidate understands on flags.
func DefineFlags(flags *pflag.FlagSet) {
	flags.StringP("root", "r", "", "Directory to hash (or pass it as the first argument)")
	flags.String("config", "", "Config file (default: ./dirhash.yaml, ~/.config/dirhash/dirhash.yaml)")
	flags.String("profile", "", "Configuration profile to apply")
	flags.BoolP("verbose", "v", false, "Verbose logging (disables the TUI)")
	flags.Bool("no-tui", false, "Disable the interactive terminal UI")
	flags.IntP("concurrency", "c", dirhash.DefaultConcurrency, "Files hashed at once (0 = number of CPUs)")
	flags.StringP("algorithm", "a", string(dirhash.DefaultAlgorithm), fmt.Sprintf("Digest algorithm %v", dirhash.SupportedAlgorithms))
	flags.String("symlinks", string(dirhash.DefaultSymlinkPolicy), "Symlink policy: skip or follow")
	flags.Int64("max-file-size", dirhash.DefaultMaxFileSize, "Fail on files larger than this many bytes (0 = no limit)")
	flags.StringArrayP("ignore", "i", []string{}, "gitignore-style pattern to exclude (repeatable)")
	flags.Bool("gitignore", false, "Also exclude paths matched by .gitignore files inside the tree")
	flags.StringP("output-format", "o", string(output.FormatText), fmt.Sprintf("Result format %v", output.Formats))
	flags.String("timeout", DefaultTimeout, "Abort the run after this duration (e.g. 30s, 5m; 0 = none)")
}

// LoadAndValidate loads configuration from all sources (defaults, file, profile,
// env, flags), validates the merged result and sets up the logger.
func LoadAndValidate(cfgFile, profileName, appVersion string, verbose bool, flags *pflag.FlagSet) (Settings, *slog.Logger, error) {
	var s Settings
	v := viper.New()

	tempLogger := slog.New(slog.NewTextHandler(logOutput, &slog.HandlerOptions{Level: levelFor(verbose)}))

	setDefaults(v)

	// --- Load Config File ---
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", DefaultConfigName))
			v.AddConfigPath(filepath.Join(home, "."+DefaultConfigName))
		} else {
			tempLogger.Debug("No home directory, searching the working directory only", slog.Any("error", err))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && cfgFile == "" {
			tempLogger.Debug("No configuration file found, using defaults/env/flags.")
		} else {
			used := cfgFile
			if used == "" {
				used = fmt.Sprintf("searched locations for %s.yaml", DefaultConfigName)
			}
			tempLogger.Error("Error reading configuration file", slog.String("path", used), slog.Any("error", err))
			return s, tempLogger, fmt.Errorf("error reading config file '%s': %w", used, err)
		}
	} else {
		s.ConfigFilePath = v.ConfigFileUsed()
		tempLogger.Debug("Using configuration file", slog.String("path", s.ConfigFilePath))
	}

	// --- Apply Profile ---
	s.ProfileName = profileName
	if profileName != "" {
		profileKey := "profiles." + profileName
		profile := v.Sub(profileKey)
		if profile == nil {
			configPath := v.ConfigFileUsed()
			if configPath == "" {
				configPath = "(no config file found)"
			}
			err := fmt.Errorf("%w: profile '%s' not found in config file '%s'", dirhash.ErrConfigValidation, profileName, configPath)
			tempLogger.Error(err.Error())
			return s, tempLogger, err
		}
		if err := v.MergeConfigMap(profile.AllSettings()); err != nil {
			tempLogger.Error("Error merging profile", slog.String("profile", profileName), slog.Any("error", err))
			return s, tempLogger, fmt.Errorf("error merging profile '%s': %w", profileName, err)
		}
		tempLogger.Debug("Applied configuration profile", slog.String("profile", profileName))
	}

	// --- Bind Environment Variables ---
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// --- Bind Flags (Highest Priority) ---
	for key, name := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			tempLogger.Debug("Flag lookup failed during binding", slog.String("flag", name))
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			tempLogger.Error("Error binding flag", slog.String("flag", name), slog.Any("error", err))
			return s, tempLogger, fmt.Errorf("error binding flag '--%s': %w", name, err)
		}
	}

	if err := v.Unmarshal(&s); err != nil {
		tempLogger.Error("Error unmarshalling configuration", slog.Any("error", err))
		return s, tempLogger, fmt.Errorf("error unmarshalling configuration: %w", err)
	}
	s.AppVersion = appVersion

	// Explicit flags always win, including booleans set to false.
	if flags.Changed("root") {
		s.RootPath, _ = flags.GetString("root")
	}
	if flags.Changed("gitignore") {
		s.UseGitignore, _ = flags.GetBool("gitignore")
	}
	if flags.Changed("verbose") {
		s.Verbose, _ = flags.GetBool("verbose")
	}
	if verbose {
		s.Verbose = true
	}
	if flags.Changed("no-tui") {
		if noTui, _ := flags.GetBool("no-tui"); noTui {
			s.TuiEnabled = false
		}
	}

	// --- Setup Final Logger ---
	logLevel := levelFor(s.Verbose)
	logHandler := slog.NewTextHandler(logOutput, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logHandler)
	if s.Verbose {
		s.Logger = logHandler
	} else {
		// Library chatter stays out of the TUI and progress bar unless something goes wrong.
		s.Logger = slog.NewTextHandler(logOutput, &slog.HandlerOptions{Level: slog.LevelWarn})
	}

	if err := validateAndDerive(&s, logger); err != nil {
		return s, logger, err
	}

	logger.Debug("Configuration loading and validation complete",
		slog.String("configFile", s.ConfigFilePath),
		slog.String("profile", s.ProfileName),
		slog.Bool("verbose", s.Verbose),
		slog.String("logLevel", logLevel.String()),
	)
	return s, logger, nil
}

func levelFor(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// setDefaults establishes the default values for configuration options in Viper.
func setDefaults(v *viper.Viper) {
	// --- Behavior & Control ---
	v.SetDefault("verbose", false)
	v.SetDefault("tuiEnabled", DefaultTuiEnabled)
	v.SetDefault("timeout", DefaultTimeout)

	// --- Hashing ---
	v.SetDefault("root", "")
	v.SetDefault("concurrency", dirhash.DefaultConcurrency)
	v.SetDefault("algorithm", string(dirhash.DefaultAlgorithm))
	v.SetDefault("symlinks", string(dirhash.DefaultSymlinkPolicy))
	v.SetDefault("maxFileSize", dirhash.DefaultMaxFileSize)
	v.SetDefault("ignore", []string{})
	v.SetDefault("gitignore", false)

	// --- Output ---
	v.SetDefault("outputFormat", string(output.FormatText))
}

// validateAndDerive performs semantic validation on s and fills derived fields.
// It wraps errors with dirhash.ErrConfigValidation.
func validateAndDerive(s *Settings, logger *slog.Logger) error {
	fail := func(key string, value any, format string, args ...any) error {
		err := fmt.Errorf("%w: "+format, append([]any{dirhash.ErrConfigValidation}, args...)...)
		logger.Error(err.Error(), slog.String("key", key), slog.Any("value", value))
		return err
	}

	// === Root ===
	if strings.TrimSpace(s.RootPath) == "" {
		return fail("root", s.RootPath, "a directory to hash is required (argument or --root)")
	}
	absRoot, err := filepath.Abs(s.RootPath)
	if err != nil {
		return fail("root", s.RootPath, "cannot resolve absolute root path '%s': %w", s.RootPath, err)
	}
	s.RootPath = absRoot

	// === Enum Validations ===
	s.HashAlgorithm = dirhash.Algorithm(strings.ToLower(strings.TrimSpace(string(s.HashAlgorithm))))
	if !slices.Contains(dirhash.SupportedAlgorithms, s.HashAlgorithm) {
		return fail("algorithm", s.HashAlgorithm, "invalid value '%s' for key 'algorithm' (flag --algorithm). Allowed: %v", s.HashAlgorithm, dirhash.SupportedAlgorithms)
	}
	s.SymlinkPolicy = dirhash.SymlinkPolicy(strings.ToLower(strings.TrimSpace(string(s.SymlinkPolicy))))
	allowedSymlinks := []dirhash.SymlinkPolicy{dirhash.SymlinkSkip, dirhash.SymlinkFollow}
	if !slices.Contains(allowedSymlinks, s.SymlinkPolicy) {
		return fail("symlinks", s.SymlinkPolicy, "invalid value '%s' for key 'symlinks' (flag --symlinks). Allowed: %v", s.SymlinkPolicy, allowedSymlinks)
	}
	format, err := output.ParseFormat(string(s.OutputFormat))
	if err != nil {
		return fail("outputFormat", s.OutputFormat, "invalid value for key 'outputFormat' (flag --output-format): %w", err)
	}
	s.OutputFormat = format

	// === Numeric Range Validations ===
	if s.MaxConcurrency < 0 {
		return fail("concurrency", s.MaxConcurrency, "invalid value '%d' for key 'concurrency' (flag --concurrency). Must be >= 0", s.MaxConcurrency)
	}
	if s.MaxConcurrency == 0 {
		s.MaxConcurrency = runtime.NumCPU()
		logger.Debug("Concurrency not set, defaulting to number of CPUs", slog.Int("concurrency", s.MaxConcurrency))
	}
	if s.MaxFileSize < 0 {
		return fail("maxFileSize", s.MaxFileSize, "invalid value '%d' for key 'maxFileSize' (flag --max-file-size). Must be >= 0", s.MaxFileSize)
	}

	// === Timeout ===
	timeout, err := time.ParseDuration(strings.TrimSpace(s.TimeoutString))
	if err != nil {
		return fail("timeout", s.TimeoutString, "invalid duration '%s' for key 'timeout' (flag --timeout): %w", s.TimeoutString, err)
	}
	if timeout < 0 {
		return fail("timeout", s.TimeoutString, "invalid negative duration '%s' for key 'timeout'", s.TimeoutString)
	}
	s.Timeout = timeout

	if s.Verbose && s.TuiEnabled {
		logger.Debug("Verbose mode enabled, TUI disabled")
		s.TuiEnabled = false
	}

	logger.Debug("Final derived settings validated",
		slog.String("root", s.RootPath),
		slog.Int("concurrency", s.MaxConcurrency),
		slog.String("algorithm", string(s.HashAlgorithm)),
		slog.String("symlinks", string(s.SymlinkPolicy)),
		slog.Int64("maxFileSize", s.MaxFileSize),
		slog.Int("ignorePatterns", len(s.IgnorePatterns)),
		slog.Bool("gitignore", s.UseGitignore),
		slog.String("outputFormat", string(s.OutputFormat)),
		slog.Duration("timeout", s.Timeout),
		slog.Bool("tuiEnabledEffective", s.TuiEnabled),
	)
	return nil
}
