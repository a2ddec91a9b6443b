package cli

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/yandex/lineprof/pkg/xlog"
)

type Config struct {
	// Path to the recorded trace (.jsonl, optionally .zst-compressed).
	Trace string `yaml:"trace"`

	// Directory file-referencing trace functions resolve their sources
	// against. Empty disables file-backed functions.
	SourceDir string `yaml:"source_dir"`

	// Snapshot destination. Format is inferred from the extension unless
	// Format is set explicitly.
	Output string `yaml:"output"`

	// One of `json`, `pprof`, `table`.
	Format string `yaml:"format"`

	// Number of hottest functions expanded in table reports.
	TopFunctions int `yaml:"top_functions"`

	// Address the serve command listens on.
	Listen string `yaml:"listen"`

	// Size of the source-file cache used with SourceDir.
	SourceCacheSize int `yaml:"source_cache_size"`
}

func defaultConfig() *Config {
	return &Config{
		Format:          "",
		TopFunctions:    5,
		Listen:          ":9090",
		SourceCacheSize: 256,
	}
}

func parseYaml(l xlog.Logger, path string, conf interface{}) error {
	if path == "" {
		return nil
	}

	l.Info("Loading config file", zap.String("path", path))
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, conf); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
