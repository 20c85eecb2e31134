package bus

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when config.yaml is absent or silent on a key.
const (
	DefaultRetentionMaxBytes = 16 << 20
	DefaultDedupWindow       = 0 // disabled
	DefaultAckTimeout        = 0 // disabled
)

// Config is the per-queue tuning read from <dir>/config.yaml. The file
// is optional; durations are given in whole seconds.
type Config struct {
	RetentionMaxBytes int64
	DedupWindow       time.Duration
	AckTimeout        time.Duration
}

type rawConfig struct {
	RetentionMaxBytes int64 `yaml:"retention-max-bytes"`
	DedupWindowSec    int64 `yaml:"dedup-window"`
	AckTimeoutSec     int64 `yaml:"ack-timeout"`
}

// LoadConfig reads dir/config.yaml, falling back to defaults for a
// missing file or missing keys. Non-positive values keep the default;
// a file that exists but does not parse is an error, not a silent
// fallback.
func LoadConfig(dir string) (*Config, error) {
	cfg := &Config{
		RetentionMaxBytes: DefaultRetentionMaxBytes,
		DedupWindow:       DefaultDedupWindow,
		AckTimeout:        DefaultAckTimeout,
	}

	path := filepath.Join(dir, "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if raw.RetentionMaxBytes > 0 {
		cfg.RetentionMaxBytes = raw.RetentionMaxBytes
	}
	if raw.DedupWindowSec > 0 {
		cfg.DedupWindow = time.Duration(raw.DedupWindowSec) * time.Second
	}
	if raw.AckTimeoutSec > 0 {
		cfg.AckTimeout = time.Duration(raw.AckTimeoutSec) * time.Second
	}
	return cfg, nil
}
