package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	arkembedding "github.com/cloudwego/eino-ext/components/embedding/ark"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	localembedding "github.com/zhouzirui/docchat/internal/service/embedding"
)

const (
	EmbeddingProviderArk   = "ark"
	EmbeddingProviderLocal = "local"
)

// ErrUsageStoreMissing 表示未配置计数存储的地址或密钥。
var ErrUsageStoreMissing = errors.New("usage store url and key are required (USAGE_STORE_URL/SUPABASE_URL, USAGE_STORE_KEY/SUPABASE_KEY)")

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Embedding EmbeddingConfig
	Chat      ChatConfig
	Usage     UsageConfig
	Log       LogConfig
}

// AddFlags 注册命令行参数，只暴露监听地址。
func AddFlags(fs *pflag.FlagSet) {
	fs.String("host", "", "address to listen on (overrides HOST)")
	fs.Int("port", 0, "port to listen on (overrides PORT)")
}

// Load 依次读取环境变量、命令行参数和默认值。fs 可以为 nil。
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := newViper()
	if fs != nil {
		for key, name := range map[string]string{"server.host": "host", "server.port": "port"} {
			if flag := fs.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	server, err := loadServerConfig(v)
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig(v)
	if err != nil {
		return nil, err
	}

	emb, err := loadEmbeddingConfig(v)
	if err != nil {
		return nil, err
	}

	chat, err := loadChatConfig(v)
	if err != nil {
		return nil, err
	}

	usage, err := loadUsageConfig(v)
	if err != nil {
		return nil, err
	}

	log, err := loadLogConfig(v)
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Embedding: emb, Chat: chat, Usage: usage, Log: log}, nil
}

func newViper() *viper.Viper {
	v := viper.New()

	bindings := map[string][]string{
		"server.host": {"HOST"},
		"server.port": {"PORT"},

		"ai.api_key":     {"ARK_API_KEY"},
		"ai.access_key":  {"ARK_ACCESS_KEY"},
		"ai.secret_key":  {"ARK_SECRET_KEY"},
		"ai.model":       {"ARK_MODEL", "Model"},
		"ai.base_url":    {"ARK_BASE_URL"},
		"ai.region":      {"ARK_REGION"},
		"ai.temperature": {"ARK_TEMPERATURE"},
		"ai.top_p":       {"ARK_TOP_P"},
		"ai.max_tokens":  {"ARK_MAX_TOKENS"},

		"embedding.provider":   {"EMBEDDING_PROVIDER"},
		"embedding.model":      {"ARK_EMBEDDING_MODEL"},
		"embedding.dimensions": {"EMBEDDING_DIMENSIONS"},

		"chat.forward_condensed_question": {"CHAT_FORWARD_CONDENSED_QUESTION"},
		"chat.answer_timeout":             {"CHAT_ANSWER_TIMEOUT"},
		"chat.setup_timeout":              {"CHAT_SETUP_TIMEOUT"},
		"chat.retrieval_top_k":            {"CHAT_RETRIEVAL_TOP_K"},
		"chat.chunk_size":                 {"CHAT_CHUNK_SIZE"},
		"chat.chunk_overlap":              {"CHAT_CHUNK_OVERLAP"},
		"chat.tracing":                    {"CHAT_TRACING"},

		"usage.url":     {"USAGE_STORE_URL", "SUPABASE_URL"},
		"usage.key":     {"USAGE_STORE_KEY", "SUPABASE_KEY"},
		"usage.table":   {"USAGE_TABLE"},
		"usage.column":  {"USAGE_COLUMN"},
		"usage.timeout": {"USAGE_TIMEOUT"},

		"log.level":       {"LOG_LEVEL"},
		"log.development": {"LOG_DEVELOPMENT"},
	}
	for key, envs := range bindings {
		// BindEnv 只有在传入 key 时才会返回错误。
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 9000)

	v.SetDefault("ai.base_url", "https://ark.cn-beijing.volces.com/api/v3")
	v.SetDefault("ai.region", "cn-beijing")
	v.SetDefault("ai.temperature", 0)

	v.SetDefault("embedding.dimensions", localembedding.DefaultDimensions)

	v.SetDefault("chat.forward_condensed_question", false)
	v.SetDefault("chat.answer_timeout", "2m")
	v.SetDefault("chat.setup_timeout", "1m")
	v.SetDefault("chat.retrieval_top_k", 4)
	v.SetDefault("chat.chunk_size", 1000)
	v.SetDefault("chat.chunk_overlap", 200)
	v.SetDefault("chat.tracing", false)

	v.SetDefault("usage.table", "daily_summary")
	v.SetDefault("usage.column", "chat_ct")
	v.SetDefault("usage.timeout", "5s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	return v
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Host string
	Port int
}

// Addr 返回 host:port 形式的监听地址。
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func loadServerConfig(v *viper.Viper) (ServerConfig, error) {
	port, err := getInt(v, "server.port")
	if err != nil {
		return ServerConfig{}, err
	}
	if port < 1 || port > 65535 {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %d", port)
	}
	return ServerConfig{Host: getString(v, "server.host"), Port: port}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && c.hasCredentials()
}

func (c AIConfig) hasCredentials() bool {
	return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig(v *viper.Viper) (AIConfig, error) {
	temperature, err := getOptionalFloat(v, "ai.temperature")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := getOptionalFloat(v, "ai.top_p")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := getOptionalInt(v, "ai.max_tokens")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      getString(v, "ai.api_key"),
		AccessKey:   getString(v, "ai.access_key"),
		SecretKey:   getString(v, "ai.secret_key"),
		Model:       getString(v, "ai.model"),
		BaseURL:     getString(v, "ai.base_url"),
		Region:      getString(v, "ai.region"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// EmbeddingConfig 描述向量化配置。
type EmbeddingConfig struct {
	Provider   string
	Model      string
	Dimensions int
}

// NewEmbedder 按 Provider 创建向量化组件；ark 复用对话模型的凭证。
func (c EmbeddingConfig) NewEmbedder(ctx context.Context, ai AIConfig) (embedding.Embedder, error) {
	switch c.Provider {
	case EmbeddingProviderLocal:
		emb, err := localembedding.NewHashingEmbedder(c.Dimensions)
		if err != nil {
			return nil, err
		}
		return emb, nil
	case EmbeddingProviderArk:
		if c.Model == "" || !ai.hasCredentials() {
			return nil, fmt.Errorf("ark embedding requires ARK_EMBEDDING_MODEL and Ark credentials")
		}
		emb, err := arkembedding.NewEmbedder(ctx, &arkembedding.EmbeddingConfig{
			BaseURL:   ai.BaseURL,
			Region:    ai.Region,
			APIKey:    ai.APIKey,
			AccessKey: ai.AccessKey,
			SecretKey: ai.SecretKey,
			Model:     c.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("create ark embedder: %w", err)
		}
		return emb, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", c.Provider)
	}
}

func loadEmbeddingConfig(v *viper.Viper) (EmbeddingConfig, error) {
	dims, err := getInt(v, "embedding.dimensions")
	if err != nil {
		return EmbeddingConfig{}, err
	}
	if dims <= 0 {
		return EmbeddingConfig{}, fmt.Errorf("invalid EMBEDDING_DIMENSIONS value: %d", dims)
	}

	cfg := EmbeddingConfig{
		Provider:   strings.ToLower(getString(v, "embedding.provider")),
		Model:      getString(v, "embedding.model"),
		Dimensions: dims,
	}
	switch cfg.Provider {
	case "":
		// 配置了远程向量模型时优先使用它。
		cfg.Provider = EmbeddingProviderLocal
		if cfg.Model != "" {
			cfg.Provider = EmbeddingProviderArk
		}
	case EmbeddingProviderArk, EmbeddingProviderLocal:
	default:
		return EmbeddingConfig{}, fmt.Errorf("invalid EMBEDDING_PROVIDER value %q", cfg.Provider)
	}
	return cfg, nil
}

// ChatConfig 描述对话会话的行为。
type ChatConfig struct {
	ForwardCondensedQuestion bool
	AnswerTimeout            time.Duration
	SetupTimeout             time.Duration
	RetrievalTopK            int
	ChunkSize                int
	ChunkOverlap             int
	Tracing                  bool
}

func loadChatConfig(v *viper.Viper) (ChatConfig, error) {
	forward, err := getBool(v, "chat.forward_condensed_question")
	if err != nil {
		return ChatConfig{}, err
	}
	answerTimeout, err := getDuration(v, "chat.answer_timeout")
	if err != nil {
		return ChatConfig{}, err
	}
	setupTimeout, err := getDuration(v, "chat.setup_timeout")
	if err != nil {
		return ChatConfig{}, err
	}
	topK, err := getInt(v, "chat.retrieval_top_k")
	if err != nil {
		return ChatConfig{}, err
	}
	chunkSize, err := getInt(v, "chat.chunk_size")
	if err != nil {
		return ChatConfig{}, err
	}
	overlap, err := getInt(v, "chat.chunk_overlap")
	if err != nil {
		return ChatConfig{}, err
	}
	tracing, err := getBool(v, "chat.tracing")
	if err != nil {
		return ChatConfig{}, err
	}

	if topK < 1 {
		return ChatConfig{}, fmt.Errorf("invalid CHAT_RETRIEVAL_TOP_K value: %d", topK)
	}
	if chunkSize < 1 || overlap < 0 || overlap >= chunkSize {
		return ChatConfig{}, fmt.Errorf("invalid chunking: size %d overlap %d", chunkSize, overlap)
	}

	return ChatConfig{
		ForwardCondensedQuestion: forward,
		AnswerTimeout:            answerTimeout,
		SetupTimeout:             setupTimeout,
		RetrievalTopK:            topK,
		ChunkSize:                chunkSize,
		ChunkOverlap:             overlap,
		Tracing:                  tracing,
	}, nil
}

// UsageConfig 描述每日计数存储。
type UsageConfig struct {
	URL     string
	Key     string
	Table   string
	Column  string
	Timeout time.Duration
}

func loadUsageConfig(v *viper.Viper) (UsageConfig, error) {
	timeout, err := getDuration(v, "usage.timeout")
	if err != nil {
		return UsageConfig{}, err
	}

	cfg := UsageConfig{
		URL:     getString(v, "usage.url"),
		Key:     getString(v, "usage.key"),
		Table:   getString(v, "usage.table"),
		Column:  getString(v, "usage.column"),
		Timeout: timeout,
	}
	if cfg.URL == "" || cfg.Key == "" {
		return UsageConfig{}, ErrUsageStoreMissing
	}
	return cfg, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level       string
	Development bool
}

func loadLogConfig(v *viper.Viper) (LogConfig, error) {
	dev, err := getBool(v, "log.development")
	if err != nil {
		return LogConfig{}, err
	}
	return LogConfig{Level: strings.ToLower(getString(v, "log.level")), Development: dev}, nil
}

func getString(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func getInt(v *viper.Viper, key string) (int, error) {
	val, err := cast.ToIntE(strings.TrimSpace(cast.ToString(v.Get(key))))
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, v.Get(key), err)
	}
	return val, nil
}

func getBool(v *viper.Viper, key string) (bool, error) {
	val, err := cast.ToBoolE(v.Get(key))
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, v.Get(key), err)
	}
	return val, nil
}

func getOptionalFloat(v *viper.Viper, key string) (*float64, error) {
	raw := getString(v, key)
	if raw == "" {
		return nil, nil
	}

	val, err := cast.ToFloat64E(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return &val, nil
}

func getOptionalInt(v *viper.Viper, key string) (*int, error) {
	raw := getString(v, key)
	if raw == "" {
		return nil, nil
	}

	val, err := cast.ToIntE(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return &val, nil
}

// getDuration 接受 "30s" 这样的时长，纯数字按秒处理。
func getDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := getString(v, key)
	if secs, err := strconv.Atoi(raw); err == nil {
		raw = strconv.Itoa(secs) + "s"
	}

	val, err := cast.ToDurationE(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}
