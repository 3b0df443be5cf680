package config

import (
	"errors"
	"fmt"
	"strings"

	logx "taskloop/pkg/logx"
)

// Validate checks cfg and returns every problem found, joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if !logx.ValidLevel(cfg.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if _, _, err := cfg.SchedulerOptions(); err != nil {
		errs = append(errs, err)
	}
	if err := validateStorage(cfg.Storage); err != nil {
		errs = append(errs, err)
	}

	seen := map[string]int{}
	for i, tc := range cfg.Tasks {
		path := fmt.Sprintf("tasks[%d]", i)
		if _, err := tc.Resolve(path); err != nil {
			errs = append(errs, err)
			continue
		}
		name := strings.TrimSpace(tc.Name)
		if prev, ok := seen[name]; ok {
			errs = append(errs, fmt.Errorf("%s.name: duplicate %q (also tasks[%d])", path, name, prev))
			continue
		}
		seen[name] = i
	}
	return errors.Join(errs...)
}

func validateStorage(s *StorageConfig) error {
	if s == nil {
		return nil
	}
	driver := strings.ToLower(strings.TrimSpace(s.Driver))
	switch driver {
	case "", "none":
		return nil
	case "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", s.Driver)
	}
	if strings.TrimSpace(s.Path) == "" {
		return fmt.Errorf("storage.path: required for driver %q", driver)
	}
	if s.MaxRuns < 0 {
		return errors.New("storage.max_runs: must be >= 0")
	}
	_, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout)
	return err
}
