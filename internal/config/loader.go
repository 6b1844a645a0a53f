package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
// path 为空时回退到 ./config.toml。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absCache, err := filepath.Abs(cfg.CachePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.CachePath = absCache

	absData, err := filepath.Abs(cfg.DataPath)
	if err != nil {
		return nil, fmt.Errorf("无法解析数据目录: %w", err)
	}
	cfg.DataPath = absData

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 8000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("CachePath", "./.cache")
	v.SetDefault("DataPath", "./.data/sauropod.db")
	v.SetDefault("PlaceholderImage", "/placeholder.png")
	v.SetDefault("FetchConcurrency", 5)
	v.SetDefault("SyncConcurrency", 5)
	v.SetDefault("FetchTimeout", "5m")
	v.SetDefault("FeedTimeout", "30s")
	v.SetDefault("SyncInterval", "1h")
	v.SetDefault("CleanInterval", "6h")
}

func applyDefaults(cfg *Config) {
	if cfg.ListenPort == 0 {
		cfg.ListenPort = 8000
	}
	if cfg.FetchConcurrency == 0 {
		cfg.FetchConcurrency = 5
	}
	if cfg.SyncConcurrency == 0 {
		cfg.SyncConcurrency = 5
	}
	if cfg.FetchTimeout.DurationValue() == 0 {
		cfg.FetchTimeout = Duration(5 * time.Minute)
	}
	if cfg.FeedTimeout.DurationValue() == 0 {
		cfg.FeedTimeout = Duration(30 * time.Second)
	}
	if cfg.SyncInterval.DurationValue() == 0 {
		cfg.SyncInterval = Duration(time.Hour)
	}
	if cfg.CleanInterval.DurationValue() == 0 {
		cfg.CleanInterval = Duration(6 * time.Hour)
	}
}

// durationDecodeHook 让 mapstructure 能把字符串/整数解码成 Duration。
func durationDecodeHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(Duration(0)) {
			return data, nil
		}
		var d Duration
		switch value := data.(type) {
		case string:
			if err := d.UnmarshalText([]byte(value)); err != nil {
				return nil, err
			}
		case int, int32, int64, float64:
			if err := d.UnmarshalText([]byte(fmt.Sprintf("%v", value))); err != nil {
				return nil, err
			}
		default:
			return data, nil
		}
		return d, nil
	}
}
