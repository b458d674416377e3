// Package config handles configuration loading from YAML files and environment variables.
// Configuration precedence: environment variables > config file > defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/subosito/gotenv"
	"gopkg.in/yaml.v3"
)

// Duration is a wrapper around time.Duration that supports YAML unmarshaling
// from human-readable strings like "15s", "1m" or from a bare number of seconds.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("unsupported duration format: %v", value.Kind)
	}
	parsed, err := parseDuration(value.Value)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return parsed, nil
}

// Config holds all collector configuration.
type Config struct {
	Global     GlobalConfig     `yaml:"global"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
	Traceroute TracerouteConfig `yaml:"traceroute"`
	Servers    []ServerConfig   `yaml:"servers"`
}

// GlobalConfig holds collection loop settings.
type GlobalConfig struct {
	// RunInterval is the pause between two collection cycles. A bare number
	// is read as seconds.
	RunInterval Duration `yaml:"run_interval_seconds"`
}

// MetricsConfig holds the scrape endpoint settings.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// TracerouteConfig holds settings for traceroute report files.
type TracerouteConfig struct {
	ReportDir  string `yaml:"report_dir"`
	MaxReports int    `yaml:"max_reports"`
}

// ServerConfig describes one probed host and its explicitly configured resolvers.
type ServerConfig struct {
	Hostname  string          `yaml:"hostname"`
	Resolvers ResolverConfigs `yaml:"resolvers"`
}

// ResolverConfig is the raw configuration of one resolver. The sub-document is
// kept as a YAML node until the resolver decodes it into its own typed struct.
type ResolverConfig struct {
	ID   string
	Node yaml.Node
}

// Decode decodes the resolver sub-document into v, rejecting unknown keys.
// An empty or null sub-document leaves v untouched.
func (r ResolverConfig) Decode(v any) error {
	if r.Node.Kind == 0 || r.Node.ShortTag() == "!!null" {
		return nil
	}
	data, err := yaml.Marshal(&r.Node)
	if err != nil {
		return fmt.Errorf("re-encoding %s config: %w", r.ID, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding %s config: %w", r.ID, err)
	}
	return nil
}

// ResolverConfigs is an ordered list of resolver configurations. In YAML it is
// a mapping of resolver id to sub-document; document order is preserved.
type ResolverConfigs []ResolverConfig

// UnmarshalYAML implements the yaml.Unmarshaler interface for ResolverConfigs.
func (rc *ResolverConfigs) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode && value.ShortTag() == "!!null" {
		*rc = nil
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: resolvers must be a mapping", value.Line)
	}
	out := make(ResolverConfigs, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, node := value.Content[i], value.Content[i+1]
		out = append(out, ResolverConfig{ID: key.Value, Node: *node})
	}
	*rc = out
	return nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			RunInterval: Duration{30 * time.Second},
		},
		Metrics: MetricsConfig{
			Address: "0.0.0.0:80",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
		Traceroute: TracerouteConfig{
			ReportDir:  "./reports",
			MaxReports: 100,
		},
	}
}

// LoadFromBytes parses YAML configuration from a byte slice and merges with defaults.
// ${VAR} references in string values are expanded from the environment before
// decoding. Environment overrides are applied last.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	if len(bytes.TrimSpace(data)) > 0 {
		var root yaml.Node
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, fmt.Errorf("parsing config data: %w", err)
		}
		expandEnv(&root)
		if err := root.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decoding config data: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// Load reads configuration from a YAML file and merges with defaults.
// A missing file is an error since it is the only source of servers.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("no config file found")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromBytes(data)
}

// Locate searches standard config file paths and returns the first one found.
// Returns empty string if no config file exists.
func Locate() string {
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envRef matches ${NAME} and $NAME references.
var envRef = regexp.MustCompile(`\$(?:\{([A-Za-z_][A-Za-z0-9_]*)\}|([A-Za-z_][A-Za-z0-9_]*))`)

// expandEnvString replaces ${NAME} and $NAME references with their values.
// Unset variables and any other use of '$' are left byte-for-byte as written.
func expandEnvString(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		name := m[1]
		if name == "" {
			name = m[2]
		}
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return ref
	})
}

// expandEnv expands environment references in every scalar of the tree.
// Plain scalars whose text changed get their tag re-resolved so "${PORT}" can
// decode into an int.
func expandEnv(node *yaml.Node) {
	if node.Kind == yaml.ScalarNode {
		expanded := expandEnvString(node.Value)
		if expanded != node.Value {
			node.Value = expanded
			if node.Style&(yaml.TaggedStyle|yaml.SingleQuotedStyle|yaml.DoubleQuotedStyle|yaml.LiteralStyle|yaml.FoldedStyle) == 0 {
				node.Tag = ""
			}
		}
		return
	}
	if node.Kind == yaml.AliasNode {
		return
	}
	for _, child := range node.Content {
		expandEnv(child)
	}
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment without overriding variables that are already set. It reports
// whether the file existed.
func LoadEnvFile(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("checking env file: %w", err)
	}
	if err := gotenv.Load(path); err != nil {
		return true, fmt.Errorf("loading env file %s: %w", path, err)
	}
	return true, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables have the highest precedence.
func applyEnvOverrides(cfg *Config) {
	if level := os.Getenv("DC_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if addr := os.Getenv("DC_METRICS_ADDRESS"); addr != "" {
		cfg.Metrics.Address = addr
	}
	if interval := os.Getenv("DC_RUN_INTERVAL"); interval != "" {
		if d, err := parseDuration(interval); err == nil {
			cfg.Global.RunInterval = Duration{d}
		}
	}
}

// Validate checks that the configuration can drive a collector.
func (c *Config) Validate() error {
	if c.Global.RunInterval.Duration <= 0 {
		return fmt.Errorf("global.run_interval_seconds must be positive (got %s)", c.Global.RunInterval.Duration)
	}
	if c.Metrics.Address == "" {
		return fmt.Errorf("metrics address is required")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	if len(c.Servers) == 0 {
		return fmt.Errorf("at least one server is required")
	}

	seen := make(map[string]bool, len(c.Servers))
	for i, s := range c.Servers {
		if strings.TrimSpace(s.Hostname) == "" {
			return fmt.Errorf("servers[%d]: hostname is required", i)
		}
		if seen[s.Hostname] {
			return fmt.Errorf("servers[%d]: duplicate hostname %q", i, s.Hostname)
		}
		seen[s.Hostname] = true

		ids := make(map[string]bool, len(s.Resolvers))
		for _, r := range s.Resolvers {
			if r.ID == "" {
				return fmt.Errorf("servers[%d]: resolver id is required", i)
			}
			if ids[r.ID] {
				return fmt.Errorf("servers[%d]: resolver %q configured twice", i, r.ID)
			}
			ids[r.ID] = true
		}
	}
	return nil
}
