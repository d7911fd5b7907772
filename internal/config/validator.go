package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	azerrors "github.com/standardbeagle/azline/internal/errors"
)

// Validator validates configuration and sets defaults
type Validator struct{}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates configuration and applies defaults.
// Every invalid section is reported, not only the first one.
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	v.setDefaults(cfg)

	var errs []error
	if strings.ContainsAny(cfg.Root, " \t") {
		errs = append(errs, azerrors.NewConfigError("root", cfg.Root, errors.New("root must be a single word")))
	}

	if err := v.validateProjectConfig(&cfg.Project); err != nil {
		errs = append(errs, azerrors.NewConfigError("project", cfg.Project.Root, err))
	}

	if err := v.validateBackendConfig(&cfg.Backend); err != nil {
		errs = append(errs, azerrors.NewConfigError("backend", cfg.Backend.Kind, err))
	}

	if err := v.validateWatchConfig(&cfg.Watch); err != nil {
		errs = append(errs, azerrors.NewConfigError("watch", "", err))
	}

	if cfg.Status.IntervalMs < 100 {
		errs = append(errs, azerrors.NewConfigError("status.interval_ms", fmt.Sprint(cfg.Status.IntervalMs),
			errors.New("interval must be at least 100ms")))
	}

	if err := v.validateLogConfig(&cfg.Log); err != nil {
		errs = append(errs, azerrors.NewConfigError("log", cfg.Log.Level, err))
	}

	return azerrors.NewMultiError(errs).ErrOrNil()
}

func (v *Validator) validateProjectConfig(project *Project) error {
	if project.Root == "" {
		return errors.New("project root cannot be empty")
	}
	return nil
}

func (v *Validator) validateBackendConfig(backend *Backend) error {
	switch backend.Kind {
	case BackendAzService:
		if backend.Catalog != "" {
			return errors.New("catalog path is only used by the catalog backend")
		}
	case BackendCatalog:
		if backend.Command != "" {
			return errors.New("command is only used by the azservice backend")
		}
	default:
		return fmt.Errorf("unknown backend kind %q (want %s or %s)", backend.Kind, BackendAzService, BackendCatalog)
	}
	return nil
}

func (v *Validator) validateWatchConfig(watch *Watch) error {
	if watch.DebounceMs < 0 {
		return fmt.Errorf("debounce_ms cannot be negative, got %d", watch.DebounceMs)
	}
	for _, p := range append(append([]string{}, watch.Patterns...), watch.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid pattern %q", p)
		}
	}
	return nil
}

func (v *Validator) validateLogConfig(log *Log) error {
	switch log.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", log.Level)
	}
	if log.MaxSizeMB < 0 || log.MaxBackups < 0 {
		return errors.New("log rotation limits cannot be negative")
	}
	return nil
}

// setDefaults fills every unset value
func (v *Validator) setDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if cfg.Root == "" {
		cfg.Root = DefaultRoot
	}
	if cfg.Project.Name == "" && cfg.Project.Root != "" {
		cfg.Project.Name = filepath.Base(cfg.Project.Root)
	}
	if cfg.Backend.Kind == "" {
		cfg.Backend.Kind = BackendAzService
	}
	if len(cfg.Watch.Patterns) == 0 {
		cfg.Watch.Patterns = []string{"**/*.azcli"}
	}
	if cfg.Watch.DebounceMs == 0 {
		cfg.Watch.DebounceMs = DefaultWatchDebounceMs
	}
	if cfg.Status.IntervalMs == 0 {
		cfg.Status.IntervalMs = DefaultStatusIntervalMs
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = DefaultLogMaxBackups
	}
}

// ValidateConfig is a convenience function for quick validation
func ValidateConfig(cfg *Config) error {
	return NewValidator().ValidateAndSetDefaults(cfg)
}
