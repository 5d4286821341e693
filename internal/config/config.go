package config

import (
	"errors"
	"fmt"
	"time"
)

// Config 应用配置根结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Chat      ChatConfig      `mapstructure:"chat"`
	WebSearch WebSearchConfig `mapstructure:"websearch"`
	Models    []ModelConfig   `mapstructure:"models"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LogConfig 日志配置 (Zerolog)
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	TimeFormat string `mapstructure:"time_format"`
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	URI         string `mapstructure:"uri"`
	Database    string `mapstructure:"database"`
	MaxPoolSize uint64 `mapstructure:"max_pool_size"`
	MinPoolSize uint64 `mapstructure:"min_pool_size"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig 认证配置
// 本服务只校验 Bearer Token，不签发；匿名会话走 cookie
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// ChatConfig 对话编排配置
type ChatConfig struct {
	DefaultModel string `mapstructure:"default_model"` // 新建对话的默认模型
	DefaultTitle string `mapstructure:"default_title"` // 新建对话的默认标题
	RateLimit    int64  `mapstructure:"rate_limit"`    // 会话消息事件上限（0 = 不限制）
	AutoTitle    bool   `mapstructure:"auto_title"`    // 首轮完成后自动生成标题
}

// WebSearchConfig 联网搜索配置
type WebSearchConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	ProviderURL   string        `mapstructure:"provider_url"`   // 搜索服务地址（返回 organic_results）
	APIKey        string        `mapstructure:"api_key"`        // 搜索服务密钥（可选）
	SimilarityURL string        `mapstructure:"similarity_url"` // 句子相似度服务地址
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`  // 单页抓取超时
}

// ModelConfig 推理模型配置
type ModelConfig struct {
	Name       string           `mapstructure:"name"`
	Preprompt  string           `mapstructure:"preprompt"`
	Prompt     PromptTokens     `mapstructure:"prompt"`
	Parameters GenerationParams `mapstructure:"parameters"`
	Endpoints  []EndpointConfig `mapstructure:"endpoints"`
}

// PromptTokens 模型专属的提示词标记
type PromptTokens struct {
	UserToken      string `mapstructure:"user_token"`
	AssistantToken string `mapstructure:"assistant_token"`
	SepToken       string `mapstructure:"sep_token"`
}

// GenerationParams 生成参数，随请求原样下发到推理后端
type GenerationParams struct {
	Temperature  float64  `mapstructure:"temperature" json:"temperature,omitempty"`
	TopP         float64  `mapstructure:"top_p" json:"top_p,omitempty"`
	MaxNewTokens int      `mapstructure:"max_new_tokens" json:"max_new_tokens,omitempty"`
	Truncate     int      `mapstructure:"truncate" json:"-"`
	Stop         []string `mapstructure:"stop" json:"stop,omitempty"`
}

// EndpointConfig 推理后端端点
type EndpointConfig struct {
	Host   string `mapstructure:"host"`   // 端点类型标识（如 "local"）
	URL    string `mapstructure:"url"`    // 生成接口地址
	Token  string `mapstructure:"token"`  // 访问凭证（可选，以 Bearer 下发）
	Reset  bool   `mapstructure:"reset"`  // POST 前需要先 GET /reset 预热
	Weight int    `mapstructure:"weight"` // 随机选择权重，默认 1
}

// Model 按名称查找模型配置
func (c *Config) Model(name string) (*ModelConfig, bool) {
	for i := range c.Models {
		if c.Models[i].Name == name {
			return &c.Models[i], true
		}
	}
	return nil, false
}

// DefaultModel 返回默认模型配置
func (c *Config) DefaultModel() (*ModelConfig, bool) {
	if c.Chat.DefaultModel != "" {
		return c.Model(c.Chat.DefaultModel)
	}
	if len(c.Models) > 0 {
		return &c.Models[0], true
	}
	return nil, false
}

// Validate 验证配置有效性
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	validModes := map[string]bool{"debug": true, "release": true, "test": true}
	if !validModes[c.Server.Mode] {
		return errors.New("invalid server mode, must be debug/release/test")
	}

	if len(c.Models) == 0 {
		return errors.New("at least one model must be configured")
	}
	for i := range c.Models {
		m := &c.Models[i]
		if m.Name == "" {
			return fmt.Errorf("models[%d]: name is required", i)
		}
		// 提示词按词数截断，0 会把所有提示词截成空串
		if m.Parameters.Truncate <= 0 {
			return fmt.Errorf("model %q: parameters.truncate must be positive", m.Name)
		}
		for j, ep := range m.Endpoints {
			if ep.URL == "" {
				return fmt.Errorf("model %q endpoints[%d]: url is required", m.Name, j)
			}
		}
	}

	return nil
}
