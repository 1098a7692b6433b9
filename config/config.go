package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/quayside/berthd/core/conflict"
	"github.com/quayside/berthd/core/metrics"
	"github.com/quayside/berthd/core/optimize"
	"github.com/quayside/berthd/core/reopt"
	"github.com/quayside/berthd/core/scoring"
	"github.com/quayside/berthd/core/suggest"
	"github.com/quayside/berthd/core/validate"
	"github.com/quayside/berthd/infra/feed"
)

type Config struct {
	Feed      feed.Config     `json:"feed"`
	Suggest   suggest.Config  `json:"suggest"`
	Validate  validate.Config `json:"validate"`
	Solver    optimize.Config `json:"solver"`
	Scoring   scoring.Weights `json:"scoring"`
	Reopt     reopt.Config    `json:"reopt"`
	Conflicts conflict.Config `json:"conflicts"`
	Metrics   metrics.Config  `json:"metrics"`
	Journal   JournalConfig   `json:"journal"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("BERTHD_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "berthd_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Journal.SetDefaults()
	cfg.Metrics.SetDefaults()
	if err := cfg.Journal.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
