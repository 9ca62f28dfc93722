package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath       = "config.toml"
	DefaultHTTPAddr         = ":8080"
	DefaultCommandPrefix    = "!"
	DefaultCommandName      = "askdocs"
	DefaultOpenAIBaseURL    = "https://api.openai.com/v1"
	DefaultModel            = "gpt-4o-mini"
	DefaultEmbeddingModel   = "text-embedding-ada-002"
	DefaultQdrantHost       = "127.0.0.1"
	DefaultQdrantPort       = 6334
	DefaultQdrantCollection = "docs"
	DefaultDocsLocalPath    = "docs"
	DefaultManualFolder     = "ManualFolder"
	DefaultStateDir         = "data"
	DefaultSyncCron         = "@daily"
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Discord   DiscordConfig   `toml:"discord"`
	OpenAI    OpenAIConfig    `toml:"openai"`
	Qdrant    QdrantConfig    `toml:"qdrant"`
	Docs      DocsConfig      `toml:"docs"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Reasoner  ReasonerConfig  `toml:"reasoner"`
	Registry  RegistryConfig  `toml:"registry"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type DiscordConfig struct {
	BotToken      string `toml:"bot_token" validate:"required"`
	CommandPrefix string `toml:"command_prefix"`
	CommandName   string `toml:"command_name"`
	ThreadName    string `toml:"thread_name"`
}

type OpenAIConfig struct {
	APIKey         string `toml:"api_key" validate:"required"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	EmbeddingModel string `toml:"embedding_model"`
	AssistantName  string `toml:"assistant_name"`
	Instructions   string `toml:"instructions"`
}

type QdrantConfig struct {
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	APIKey     string `toml:"api_key"`
	UseTLS     bool   `toml:"use_tls"`
	Collection string `toml:"collection"`
}

type DocsConfig struct {
	RepoURL      string `toml:"repo_url"`
	LocalPath    string `toml:"local_path"`
	ManualFolder string `toml:"manual_folder"`
	StateDir     string `toml:"state_dir"`
	SyncCron     string `toml:"sync_cron"`
}

type RetrievalConfig struct {
	Enabled        bool    `toml:"enabled"`
	TopK           int     `toml:"top_k" validate:"gte=1"`
	ScoreThreshold float64 `toml:"score_threshold" validate:"gte=0,lte=1"`
	RerankTopN     int     `toml:"rerank_top_n" validate:"gte=1"`
}

type ReasonerConfig struct {
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	PollTimeoutSeconds  int `toml:"poll_timeout_seconds"`
	RetryAttempts       int `toml:"retry_attempts"`
	RetryDelaySeconds   int `toml:"retry_delay_seconds"`
	MaxPromptTokens     int `toml:"max_prompt_tokens"`
	MaxCompletionTokens int `toml:"max_completion_tokens"`
}

func (c ReasonerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c ReasonerConfig) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutSeconds) * time.Second
}

func (c ReasonerConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

type RegistryConfig struct {
	TTLHours   int `toml:"ttl_hours"`
	MaxEntries int `toml:"max_entries"`
}

func (c RegistryConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Discord: DiscordConfig{
			CommandPrefix: DefaultCommandPrefix,
			CommandName:   DefaultCommandName,
			ThreadName:    "askdocs Conversation",
		},
		OpenAI: OpenAIConfig{
			BaseURL:        DefaultOpenAIBaseURL,
			Model:          DefaultModel,
			EmbeddingModel: DefaultEmbeddingModel,
			AssistantName:  "XRPL EVM Docs Assistant",
			Instructions: "You are an expert in XRPL EVM documentation. Answer questions clearly " +
				"and provide reference links to the docs without including any source annotations " +
				"or citations. If the question has a straight-up answer, be concise and try not " +
				"to exceed 1900 characters.",
		},
		Qdrant: QdrantConfig{
			Host:       DefaultQdrantHost,
			Port:       DefaultQdrantPort,
			Collection: DefaultQdrantCollection,
		},
		Docs: DocsConfig{
			LocalPath:    DefaultDocsLocalPath,
			ManualFolder: DefaultManualFolder,
			StateDir:     DefaultStateDir,
			SyncCron:     DefaultSyncCron,
		},
		Retrieval: RetrievalConfig{
			Enabled:        true,
			TopK:           20,
			ScoreThreshold: 0.75,
			RerankTopN:     5,
		},
		Reasoner: ReasonerConfig{
			PollIntervalSeconds: 2,
			PollTimeoutSeconds:  120,
			RetryAttempts:       3,
			RetryDelaySeconds:   2,
			MaxPromptTokens:     30000,
			MaxCompletionTokens: 30000,
		},
		Registry: RegistryConfig{
			TTLHours:   24,
			MaxEntries: 4096,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks the fields a running bot cannot do without. Load does not
// call it so that commands like sync can run with a partial config.
func Validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
