package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// Config 描述整个进程的运行参数，启动时读取一次，运行期间不再变更。
type Config struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`

	// CachePath 是媒体缓存根目录；DataPath 是 catalog 数据库文件。
	CachePath string `mapstructure:"CachePath"`
	DataPath  string `mapstructure:"DataPath"`

	// PlaceholderImage 在订阅源缺失封面时兜底使用。
	PlaceholderImage string `mapstructure:"PlaceholderImage"`

	FetchConcurrency int      `mapstructure:"FetchConcurrency"`
	SyncConcurrency  int      `mapstructure:"SyncConcurrency"`
	FetchTimeout     Duration `mapstructure:"FetchTimeout"`
	FeedTimeout      Duration `mapstructure:"FeedTimeout"`
	SyncInterval     Duration `mapstructure:"SyncInterval"`
	CleanInterval    Duration `mapstructure:"CleanInterval"`
}

// Validate 检查配置合法性，避免带病启动。
func (c *Config) Validate() error {
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("invalid listen port: %d", c.ListenPort)
	}
	if c.CachePath == "" {
		return fmt.Errorf("cache path required")
	}
	if c.DataPath == "" {
		return fmt.Errorf("data path required")
	}
	if c.FetchConcurrency <= 0 {
		return fmt.Errorf("invalid fetch concurrency: %d", c.FetchConcurrency)
	}
	if c.SyncConcurrency <= 0 {
		return fmt.Errorf("invalid sync concurrency: %d", c.SyncConcurrency)
	}
	if c.FetchTimeout.DurationValue() <= 0 {
		return fmt.Errorf("invalid fetch timeout")
	}
	if c.FeedTimeout.DurationValue() <= 0 {
		return fmt.Errorf("invalid feed timeout")
	}
	// 负值会穿过默认值填充，直接喂给 ticker 就是 panic。
	if c.SyncInterval.DurationValue() <= 0 {
		return fmt.Errorf("invalid sync interval")
	}
	if c.CleanInterval.DurationValue() <= 0 {
		return fmt.Errorf("invalid clean interval")
	}
	return nil
}
