package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"tutor-dpo/api/internal/dialogue"
	"tutor-dpo/api/internal/logging"
	"tutor-dpo/api/internal/orchestrator"
	"tutor-dpo/api/internal/preference"
	"tutor-dpo/api/internal/tutoring"
)

const (
	EnvPrefix = "TUTORGEN"
	FileName  = "tutorgen"
)

type Config struct {
	Backend     Backend     `mapstructure:"backend"`
	Models      Roles       `mapstructure:"models"`
	Temperature Temps       `mapstructure:"temperature"`
	Dialogue    Dialogue    `mapstructure:"dialogue"`
	Validation  Validate    `mapstructure:"validate"`
	Preference  Preference  `mapstructure:"preference"`
	Classify    Classify    `mapstructure:"classify"`
	Translate   Translate   `mapstructure:"translate"`
	Checkpoint  Checkpoint  `mapstructure:"checkpoint"`
	Store       Store       `mapstructure:"store"`
	Notify      Notify      `mapstructure:"notify"`
	Log         Log         `mapstructure:"log"`
	Prompts     Prompts     `mapstructure:"prompts"`
}

type Backend struct {
	Provider     string        `mapstructure:"provider"` // ollama, gemini, gpt
	Endpoint     string        `mapstructure:"endpoint"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RPS          float64       `mapstructure:"rps"` // 0 = unlimited
	GeminiAPIKey string        `mapstructure:"gemini_api_key"`
	OpenAIAPIKey string        `mapstructure:"openai_api_key"`
}

type Roles struct {
	Student    string `mapstructure:"student"`
	TutorAT    string `mapstructure:"tutor_at"`
	TutorAS    string `mapstructure:"tutor_as"`
	Translator string `mapstructure:"translator"`
	Preference string `mapstructure:"preference"`
}

type Temps struct {
	Student    float64 `mapstructure:"student"`
	TutorAT    float64 `mapstructure:"tutor_at"`
	TutorAS    float64 `mapstructure:"tutor_as"`
	Translator float64 `mapstructure:"translator"`
	Preference float64 `mapstructure:"preference"`
}

type Dialogue struct {
	MaxTurns      int           `mapstructure:"max_turns"`
	TurnPause     time.Duration `mapstructure:"turn_pause"`
	CommitPolicy  string        `mapstructure:"commit_policy"`
	ContextTokens int           `mapstructure:"context_tokens"`
}

type Validate struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
}

type Preference struct {
	Strategy    string `mapstructure:"strategy"`
	ContextMode string `mapstructure:"context_mode"`
}

type Classify struct {
	Policy string `mapstructure:"policy"`
}

type Translate struct {
	Enabled bool `mapstructure:"enabled"`
}

type Checkpoint struct {
	Every int `mapstructure:"every"`
}

type Store struct {
	DSN string `mapstructure:"dsn"`
}

type Notify struct {
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID int64  `mapstructure:"telegram_chat_id"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type Prompts struct {
	Dir string `mapstructure:"dir"`
}

const defaultModel = "gemma3:4b"

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.provider", "ollama")
	v.SetDefault("backend.endpoint", "http://127.0.0.1:11434")
	v.SetDefault("backend.timeout", "600s")
	v.SetDefault("backend.rps", 0)
	v.SetDefault("backend.gemini_api_key", "")
	v.SetDefault("backend.openai_api_key", "")

	for _, role := range []string{"student", "tutor_at", "tutor_as", "translator", "preference"} {
		v.SetDefault("models."+role, defaultModel)
	}
	v.SetDefault("temperature.student", 0.7)
	v.SetDefault("temperature.tutor_at", 0.3)
	v.SetDefault("temperature.tutor_as", 0.7)
	v.SetDefault("temperature.translator", 0.0)
	v.SetDefault("temperature.preference", 0.3)

	v.SetDefault("dialogue.max_turns", orchestrator.DefaultMaxTurns)
	v.SetDefault("dialogue.turn_pause", "100ms")
	v.SetDefault("dialogue.commit_policy", string(orchestrator.Stream))
	v.SetDefault("dialogue.context_tokens", 0)

	v.SetDefault("validate.max_attempts", 5)
	v.SetDefault("validate.backoff", "300ms")

	v.SetDefault("preference.strategy", preference.NameDivergence)
	v.SetDefault("preference.context_mode", string(dialogue.Summarized))
	v.SetDefault("classify.policy", string(tutoring.DefaultOnParseFailure))
	v.SetDefault("translate.enabled", true)
	v.SetDefault("checkpoint.every", 10)
	v.SetDefault("store.dsn", "")
	v.SetDefault("notify.telegram_token", "")
	v.SetDefault("notify.telegram_chat_id", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatConsole)
	v.SetDefault("log.file", "")
	v.SetDefault("prompts.dir", "")
}

// New returns a viper instance with defaults, env binding and the config
// search path set up. Flags may be bound to it before Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file (configPath, or tutorgen.yaml in
// ./config or .) and returns the validated configuration.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyEnvFallbacks()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// applyEnvFallbacks fills secrets from the conventional provider variables.
func (c *Config) applyEnvFallbacks() {
	if c.Backend.GeminiAPIKey == "" {
		c.Backend.GeminiAPIKey = getEnv("GEMINI_API_KEY", "")
	}
	if c.Backend.OpenAIAPIKey == "" {
		c.Backend.OpenAIAPIKey = getEnv("OPENAI_API_KEY", "")
	}
	if c.Store.DSN == "" {
		c.Store.DSN = getEnv("DATABASE_URL", "")
	}
	if c.Notify.TelegramToken == "" {
		c.Notify.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", "")
	}
	if c.Notify.TelegramChatID == 0 {
		if id, err := strconv.ParseInt(getEnv("TELEGRAM_CHAT_ID", ""), 10, 64); err == nil {
			c.Notify.TelegramChatID = id
		}
	}
}

func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Backend.Provider) {
	case "ollama":
		if c.Backend.Endpoint == "" {
			errs = append(errs, errors.New("backend.endpoint is required for ollama"))
		}
	case "gemini":
		if c.Backend.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for the gemini provider"))
		}
	case "gpt":
		if c.Backend.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the gpt provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid backend.provider: %s (must be ollama, gemini or gpt)", c.Backend.Provider))
	}
	if c.Backend.Timeout <= 0 {
		errs = append(errs, errors.New("backend.timeout must be positive"))
	}
	if c.Dialogue.MaxTurns < 1 {
		errs = append(errs, errors.New("dialogue.max_turns must be at least 1"))
	}
	if c.Validation.MaxAttempts < 1 {
		errs = append(errs, errors.New("validate.max_attempts must be at least 1"))
	}
	if _, err := orchestrator.ParseCommitPolicy(c.Dialogue.CommitPolicy); err != nil {
		errs = append(errs, err)
	}
	if _, err := preference.ParseStrategy(c.Preference.Strategy); err != nil {
		errs = append(errs, err)
	}
	if m, err := dialogue.ParseMode(c.Preference.ContextMode); err != nil {
		errs = append(errs, err)
	} else if m == dialogue.Raw {
		errs = append(errs, errors.New("preference.context_mode must be numbered or summarized"))
	}
	if _, err := tutoring.ParsePolicy(c.Classify.Policy); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == 0 {
		errs = append(errs, errors.New("notify.telegram_chat_id is required with a telegram token"))
	}
	return errors.Join(errs...)
}
