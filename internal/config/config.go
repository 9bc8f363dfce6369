package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是 FeedBuddy 的顶层配置结构。
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Sources  SourcesConfig  `yaml:"sources"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig 数据库配置。
type DatabaseConfig struct {
	// Path SQLite 数据库文件路径，为空则使用默认路径 ~/.feedbuddy/feedbuddy.db
	Path string `yaml:"path"`
}

// EngineConfig 轮询引擎配置。
type EngineConfig struct {
	// PollIntervalMinutes 全局轮询周期（分钟），对齐到整分钟边界。
	PollIntervalMinutes int `yaml:"poll_interval_minutes"`

	// Concurrency 同时进行的外部抓取数上限。
	Concurrency int `yaml:"concurrency"`

	// FetchDelayMs 同一来源类型批次内相邻抓取之间的间隔（毫秒）。
	FetchDelayMs int `yaml:"fetch_delay_ms"`

	// FetchTimeoutSeconds 单次外部抓取的超时时间（秒），上限 8 秒。
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds"`

	// MaxSubscriptionsPerDestination 每个目标频道允许的订阅数上限。
	MaxSubscriptionsPerDestination int `yaml:"max_subscriptions_per_destination"`
}

// SourcesConfig 各来源类型的外部接口配置。
type SourcesConfig struct {
	Twitter   TwitterConfig   `yaml:"twitter"`
	Twitch    TwitchConfig    `yaml:"twitch"`
	Minecraft MinecraftConfig `yaml:"minecraft"`
}

// TwitterConfig Twitter/X 时间线接口配置。
type TwitterConfig struct {
	// BearerToken 应用级访问令牌，支持 ${FEEDBUDDY_TWITTER_TOKEN} 环境变量展开。
	BearerToken string `yaml:"bearer_token"`
	// APIBase 时间线接口基地址。
	APIBase string `yaml:"api_base"`
}

// TwitchConfig Twitch 录播源配置。
type TwitchConfig struct {
	// VODFeedBase 录播 RSS 服务基地址。
	VODFeedBase string `yaml:"vod_feed_base"`
}

// MinecraftConfig Minecraft 服务器状态接口配置。
type MinecraftConfig struct {
	// StatusAPIBase 主状态接口基地址。
	StatusAPIBase string `yaml:"status_api_base"`
	// FallbackAPIBase 备用状态接口基地址，主接口超时或出错时使用。
	FallbackAPIBase string `yaml:"fallback_api_base"`
}

// DeliveryConfig 消息投递配置。
type DeliveryConfig struct {
	// WebhookBase 投递端点基地址，目标 ID 拼接在其后。
	WebhookBase string `yaml:"webhook_base"`
	// TimeoutSeconds 单次投递调用超时（秒）。
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// Timeout 返回单次投递调用超时。
func (c *DeliveryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PollInterval 返回全局轮询周期。
func (c *EngineConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMinutes) * time.Minute
}

// FetchDelay 返回批次内抓取间隔。
func (c *EngineConfig) FetchDelay() time.Duration {
	return time.Duration(c.FetchDelayMs) * time.Millisecond
}

// FetchTimeout 返回单次抓取超时。
func (c *EngineConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	// 展开环境变量，如 ${FEEDBUDDY_TWITTER_TOKEN}
	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	setDefaults(cfg)
	return cfg, nil
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.Engine.PollIntervalMinutes == 0 {
		cfg.Engine.PollIntervalMinutes = 10
	}
	if cfg.Engine.Concurrency == 0 {
		cfg.Engine.Concurrency = 8
	}
	if cfg.Engine.FetchDelayMs == 0 {
		cfg.Engine.FetchDelayMs = 150
	}
	if cfg.Engine.FetchTimeoutSeconds <= 0 || cfg.Engine.FetchTimeoutSeconds > 8 {
		cfg.Engine.FetchTimeoutSeconds = 8
	}
	if cfg.Engine.MaxSubscriptionsPerDestination == 0 {
		cfg.Engine.MaxSubscriptionsPerDestination = 10
	}
	if cfg.Sources.Twitter.APIBase == "" {
		cfg.Sources.Twitter.APIBase = "https://api.twitter.com/1.1"
	}
	if cfg.Sources.Twitch.VODFeedBase == "" {
		cfg.Sources.Twitch.VODFeedBase = "https://twitchrss.appspot.com/vod"
	}
	if cfg.Sources.Minecraft.StatusAPIBase == "" {
		cfg.Sources.Minecraft.StatusAPIBase = "https://api.mcsrvstat.us/2"
	}
	if cfg.Sources.Minecraft.FallbackAPIBase == "" {
		cfg.Sources.Minecraft.FallbackAPIBase = "https://mcapi.us/server/status"
	}
	if cfg.Delivery.TimeoutSeconds == 0 {
		cfg.Delivery.TimeoutSeconds = 10
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.Database.Path == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.Database.Path = home + "/.feedbuddy/feedbuddy.db"
		} else {
			cfg.Database.Path = "./feedbuddy.db"
		}
	} else if strings.HasPrefix(cfg.Database.Path, "~/") {
		// Go 不会自动展开 ~，需要手动替换为用户主目录
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.Database.Path = home + cfg.Database.Path[1:]
		}
	}

	// 去除令牌两端可能的空白（环境变量展开后常见）
	cfg.Sources.Twitter.BearerToken = strings.TrimSpace(cfg.Sources.Twitter.BearerToken)
}
