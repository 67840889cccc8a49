// Package config loads the job host configuration.
//
// Values are layered with increasing priority: built-in defaults, an optional
// YAML file, then CODEJOBS_* environment variables. Nested keys map to
// environment variables by replacing "." with "_", so api.addr is read from
// CODEJOBS_API_ADDR.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for every environment override.
const EnvPrefix = "CODEJOBS"

// EnvConfigFile names the environment variable holding the config file path.
const EnvConfigFile = EnvPrefix + "_CONFIG"

// Config is the top-level job host configuration.
type Config struct {
	ServiceName string          `mapstructure:"service_name" validate:"required"`
	API         APIConfig       `mapstructure:"api"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
	Kafka       KafkaConfig     `mapstructure:"kafka"`
	Remote      RemoteConfig    `mapstructure:"remote"`
	Transform   TransformConfig `mapstructure:"transform"`
	Settings    SettingsConfig  `mapstructure:"settings"`
}

// APIConfig configures the job-control HTTP server.
type APIConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// TelemetryConfig configures trace and metric export.
type TelemetryConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	Endpoint      string  `mapstructure:"endpoint" validate:"required_if=Enabled true"`
	SamplingRatio float64 `mapstructure:"sampling_ratio" validate:"gte=0,lte=1"`
}

// KafkaConfig configures the optional Kafka event sink.
type KafkaConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Brokers  []string `mapstructure:"brokers" validate:"required_if=Enabled true,dive,hostname_port"`
	Topic    string   `mapstructure:"topic" validate:"required_if=Enabled true"`
	ClientID string   `mapstructure:"client_id"`
}

// RemoteConfig locates the code analysis service.
type RemoteConfig struct {
	BaseURL     string        `mapstructure:"base_url" validate:"required,url"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gte=0"`
	ArtifactDir string        `mapstructure:"artifact_dir"`
}

// TransformConfig tunes the transformation driver.
type TransformConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout" validate:"gt=0"`
}

// SettingsConfig locates the persisted user settings. An empty path keeps
// settings in memory only.
type SettingsConfig struct {
	Path string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "codejobs")
	v.SetDefault("api.addr", "127.0.0.1:8080")
	v.SetDefault("api.shutdown_timeout", 20*time.Second)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.sampling_ratio", 1.0)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "codejobs.events")
	v.SetDefault("kafka.client_id", "codejobs")
	v.SetDefault("remote.base_url", "http://127.0.0.1:9090")
	v.SetDefault("remote.timeout", 30*time.Second)
	v.SetDefault("remote.artifact_dir", "")
	v.SetDefault("transform.poll_interval", 5*time.Second)
	v.SetDefault("transform.stop_timeout", 10*time.Second)
	v.SetDefault("settings.path", "")
}

// Load builds a Config from defaults, the YAML file at path (if non-empty)
// and the environment. When path is empty, the file named by CODEJOBS_CONFIG
// is used if set. The result is validated before it is returned.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Viper's slice hook splits on commas but keeps surrounding spaces.
	if raw := os.Getenv(EnvPrefix + "_KAFKA_BROKERS"); raw != "" {
		cfg.Kafka.Brokers = splitList(raw)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for missing or out of range values.
func (c *Config) Validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
