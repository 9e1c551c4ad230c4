package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yzsind/dbbench/api/rest/client"
	"github.com/yzsind/dbbench/internal/sink"
	"github.com/yzsind/dbbench/internal/syncer"
	"github.com/yzsind/dbbench/internal/transport"
	"github.com/yzsind/dbbench/pkg/logger"
)

// Config represents the complete configuration of the console.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Store     StoreConfig     `yaml:"store"`
	Status    StatusConfig    `yaml:"status"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   logger.Config   `yaml:"logging"`
	Sinks     []sink.Config   `yaml:"sinks,omitempty"`
}

// ServerConfig describes the benchmark backend.
type ServerConfig struct {
	BaseURL        string        `yaml:"base_url" env:"DBB_SERVER_BASE_URL"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"DBB_SERVER_REQUEST_TIMEOUT"`
	SessionID      string        `yaml:"session_id,omitempty" env:"DBB_SERVER_SESSION_ID"`
}

// TransportConfig holds the push and poll timings.
type TransportConfig struct {
	PushPath         string        `yaml:"push_path" env:"DBB_TRANSPORT_PUSH_PATH"`
	PollInterval     time.Duration `yaml:"poll_interval" env:"DBB_TRANSPORT_POLL_INTERVAL"`
	ReconnectDelay   time.Duration `yaml:"reconnect_delay" env:"DBB_TRANSPORT_RECONNECT_DELAY"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" env:"DBB_TRANSPORT_HANDSHAKE_TIMEOUT"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout" env:"DBB_TRANSPORT_FETCH_TIMEOUT"`
}

// StoreConfig holds store capacities and fetch limits.
type StoreConfig struct {
	SeriesCapacity  int `yaml:"series_capacity" env:"DBB_STORE_SERIES_CAPACITY"`
	LogHistory      int `yaml:"log_history" env:"DBB_STORE_LOG_HISTORY"`
	LogTail         int `yaml:"log_tail" env:"DBB_STORE_LOG_TAIL"`
	HistoryBackfill int `yaml:"history_backfill" env:"DBB_STORE_HISTORY_BACKFILL"`
	StartupLogFetch int `yaml:"startup_log_fetch" env:"DBB_STORE_STARTUP_LOG_FETCH"`
	ViewerLogFetch  int `yaml:"viewer_log_fetch" env:"DBB_STORE_VIEWER_LOG_FETCH"`
	StartupTailSeed int `yaml:"startup_tail_seed" env:"DBB_STORE_STARTUP_TAIL_SEED"`
}

// StatusConfig holds status machine settings.
type StatusConfig struct {
	GraceDelay time.Duration `yaml:"grace_delay" env:"DBB_STATUS_GRACE_DELAY"`
}

// MetricsConfig controls the /metrics endpoint served by the watch command.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"DBB_METRICS_ENABLED"`
	Address string `yaml:"address" env:"DBB_METRICS_ADDRESS"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:        "http://localhost:8080",
			RequestTimeout: 10 * time.Second,
		},
		Transport: TransportConfig{
			PushPath:         "/ws/metrics",
			PollInterval:     2 * time.Second,
			ReconnectDelay:   3 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			FetchTimeout:     10 * time.Second,
		},
		Store: StoreConfig{
			SeriesCapacity:  60,
			LogHistory:      1000,
			LogTail:         100,
			HistoryBackfill: 60,
			StartupLogFetch: 100,
			ViewerLogFetch:  1000,
			StartupTailSeed: 50,
		},
		Status: StatusConfig{
			GraceDelay: 3 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9464",
		},
		Logging: *logger.DefaultConfig(),
	}
}

// ClientConfig builds the REST client configuration.
func (c *Config) ClientConfig() *client.Config {
	return &client.Config{
		BaseURL:        c.Server.BaseURL,
		RequestTimeout: c.Server.RequestTimeout,
		SessionID:      c.Server.SessionID,
	}
}

// SyncerConfig builds the controller configuration. pushURL is the websocket
// endpoint derived from the base URL.
func (c *Config) SyncerConfig(pushURL string) syncer.Config {
	return syncer.Config{
		SeriesCapacity:  c.Store.SeriesCapacity,
		HistoryCapacity: c.Store.LogHistory,
		TailCapacity:    c.Store.LogTail,
		HistoryBackfill: c.Store.HistoryBackfill,
		StartupLogFetch: c.Store.StartupLogFetch,
		ViewerLogFetch:  c.Store.ViewerLogFetch,
		StartupTailSeed: c.Store.StartupTailSeed,
		GraceDelay:      c.Status.GraceDelay,
		Transport: transport.Config{
			PushURL:          pushURL,
			PollInterval:     c.Transport.PollInterval,
			ReconnectDelay:   c.Transport.ReconnectDelay,
			HandshakeTimeout: c.Transport.HandshakeTimeout,
			FetchTimeout:     c.Transport.FetchTimeout,
		},
	}
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	envPrefix  string
	cmdArgs    map[string]string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix: "DBB_",
		cmdArgs:   make(map[string]string),
	}
}

// WithConfigPath sets the path to the YAML configuration file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the prefix for environment variables. Tags declared
// with the default prefix are looked up under the new one.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithCmdArgs sets command-line arguments for configuration override.
func (l *Loader) WithCmdArgs(args map[string]string) *Loader {
	l.cmdArgs = args
	return l
}

// Load loads configuration from all sources with proper precedence:
// defaults < YAML file < environment variables < command-line flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("从文件加载配置失败: %w", err)
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("应用环境变量覆盖失败: %w", err)
	}

	if err := l.applyCmdOverrides(cfg); err != nil {
		return nil, fmt.Errorf("应用命令行参数覆盖失败: %w", err)
	}

	return cfg, nil
}

// LoadAndValidate loads the configuration and validates it.
func (l *Loader) LoadAndValidate() (*Config, error) {
	cfg, err := l.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}
	return nil
}

func (l *Loader) applyEnvOverrides(cfg *Config) error {
	return l.applyEnvToStruct(reflect.ValueOf(cfg).Elem())
}

// applyEnvToStruct recursively applies environment variables to struct fields.
func (l *Loader) applyEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := l.applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}
		if l.envPrefix != "DBB_" {
			envTag = l.envPrefix + strings.TrimPrefix(envTag, "DBB_")
		}

		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("从环境变量 %s 设置字段 %s 失败: %w", envTag, fieldType.Name, err)
		}
	}

	return nil
}

func (l *Loader) applyCmdOverrides(cfg *Config) error {
	for key, value := range l.cmdArgs {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("设置配置值 %s 失败: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a configuration value by dot-notation path, e.g.
// "transport.poll_interval".
func setConfigValue(cfg *Config, path, value string) error {
	parts := strings.Split(path, ".")
	v := reflect.ValueOf(cfg).Elem()

	for i, part := range parts {
		fieldName := strings.ReplaceAll(part, "_", "")
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return fmt.Errorf("未知的配置路径: %s", path)
		}

		if i == len(parts)-1 {
			return setFieldValue(field, value)
		}

		if field.Kind() != reflect.Struct {
			return fmt.Errorf("期望 %s 是结构体，实际是 %s", part, field.Kind())
		}
		v = field
	}

	return nil
}

// setFieldValue sets a reflect.Value from a string value.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("无法设置字段")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("无效的时间格式: %w", err)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("无效的整数: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("无效的浮点数: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("无效的布尔值: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("不支持的字段类型: %s", field.Kind())
	}

	return nil
}

// Serialize serializes the configuration to YAML bytes.
func (c *Config) Serialize() ([]byte, error) {
	return yaml.Marshal(c)
}

// ParseConfig parses a YAML configuration from bytes.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file path.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}
