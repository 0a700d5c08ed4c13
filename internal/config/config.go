package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kavelin/labelforge-backend/internal/logger"
	"github.com/kavelin/labelforge-backend/internal/utils"
)

// Settings holds the distribution and consensus tunables. Values come from
// an optional YAML file and may be overridden by environment variables.
type Settings struct {
	// MaxPages caps the page count of any single task.
	MaxPages int `yaml:"max_pages"`
	// AgreementThreshold is the minimum pairwise score for consensus.
	AgreementThreshold float64 `yaml:"agreement_threshold"`
	// TaskDeadlineDays is the advisory deadline horizon for new tasks.
	TaskDeadlineDays int `yaml:"task_deadline_days"`
}

func Defaults() Settings {
	return Settings{
		MaxPages:           50,
		AgreementThreshold: 0.9,
		TaskDeadlineDays:   14,
	}
}

// Load reads settings from the file named by LABELFORGE_CONFIG (if set),
// then applies env var overrides on top.
func Load(log *logger.Logger) (Settings, error) {
	cfg := Defaults()

	path := utils.GetEnv("LABELFORGE_CONFIG", "", log)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.MaxPages = utils.GetEnvAsInt("MAX_PAGES", cfg.MaxPages, log)
	cfg.AgreementThreshold = utils.GetEnvAsFloat("AGREEMENT_SCORE_MIN_MATCH", cfg.AgreementThreshold, log)
	cfg.TaskDeadlineDays = utils.GetEnvAsInt("TASK_DEADLINE_DAYS", cfg.TaskDeadlineDays, log)

	if cfg.MaxPages < 1 {
		return cfg, fmt.Errorf("config: max_pages must be positive, got %d", cfg.MaxPages)
	}
	if cfg.AgreementThreshold < 0 || cfg.AgreementThreshold > 1 {
		return cfg, fmt.Errorf("config: agreement_threshold must be in [0,1], got %v", cfg.AgreementThreshold)
	}
	return cfg, nil
}
