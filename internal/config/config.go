package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the API process.
// Values come from env; an optional .env file is loaded first for local runs.
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Twilio  TwilioConfig
	Speech  SpeechConfig
	LLM     LLMConfig
	Storage StorageConfig
	NATS    NATSConfig
}

type AppConfig struct {
	Env  string
	Port int

	// PublicBaseURL is the externally reachable https origin of this service.
	// Stream and status callback URLs handed to the carrier are derived from it.
	PublicBaseURL string

	// DefaultCountryCode is prepended to dial numbers without a leading "+".
	DefaultCountryCode string

	BotSpeaksFirst       bool
	MaxActiveCalls       int
	AnalysisTimeout      time.Duration
	CallbackPollInterval time.Duration
}

type DBConfig struct {
	// URL overrides the discrete fields when set.
	URL string

	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	// Zero means the pool default.
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

type SpeechConfig struct {
	DeepgramAPIKey   string
	ElevenLabsAPIKey string
	VoiceID          string
	TTSModel         string
	STTModel         string
	Language         string
}

type LLMConfig struct {
	BaseURL           string
	APIKey            string
	ConversationModel string
	AnalysisModel     string
}

// StorageConfig is optional; recordings are disabled when Endpoint is empty.
type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

// NATSConfig is optional; event fan-out is disabled when URL is empty.
type NATSConfig struct {
	URL string
}

func Load() (Config, error) {
	// Missing .env is normal outside local development.
	_ = godotenv.Load()

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port, parseErrs = intOr(parseErrs, "APP_PORT", 8000)
	c.App.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/")
	c.App.DefaultCountryCode = strings.TrimSpace(os.Getenv("DEFAULT_COUNTRY_CODE"))
	c.App.BotSpeaksFirst, parseErrs = boolOr(parseErrs, "BOT_SPEAKS_FIRST", true)
	c.App.MaxActiveCalls, parseErrs = intOr(parseErrs, "MAX_ACTIVE_CALLS", 50)
	c.App.AnalysisTimeout = mustDuration("ANALYSIS_TIMEOUT")
	c.App.CallbackPollInterval = mustDuration("CALLBACK_POLL_INTERVAL")

	c.DB.URL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port, parseErrs = intOr(parseErrs, "DB_PORT", 5432)
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	c.DB.MaxOpenConns, parseErrs = intOr(parseErrs, "DB_MAX_OPEN_CONNS", 0)
	c.DB.MaxIdleConns, parseErrs = intOr(parseErrs, "DB_MAX_IDLE_CONNS", 0)

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port, parseErrs = intOr(parseErrs, "REDIS_PORT", 6379)
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.FromNumber = strings.TrimSpace(os.Getenv("TWILIO_FROM_NUMBER"))

	c.Speech.DeepgramAPIKey = os.Getenv("DEEPGRAM_API_KEY")
	c.Speech.ElevenLabsAPIKey = os.Getenv("ELEVENLABS_API_KEY")
	c.Speech.VoiceID = strings.TrimSpace(os.Getenv("ELEVENLABS_VOICE_ID"))
	c.Speech.TTSModel = strings.TrimSpace(os.Getenv("ELEVENLABS_MODEL"))
	c.Speech.STTModel = strings.TrimSpace(os.Getenv("DEEPGRAM_MODEL"))
	c.Speech.Language = strings.TrimSpace(os.Getenv("SPEECH_LANGUAGE"))

	c.LLM.BaseURL = strings.TrimSpace(os.Getenv("LLM_BASE_URL"))
	c.LLM.APIKey = os.Getenv("LLM_API_KEY")
	c.LLM.ConversationModel = strings.TrimSpace(os.Getenv("LLM_MODEL"))
	c.LLM.AnalysisModel = strings.TrimSpace(os.Getenv("LLM_ANALYSIS_MODEL"))

	c.Storage.Endpoint = strings.TrimSpace(os.Getenv("MINIO_ENDPOINT"))
	c.Storage.AccessKey = os.Getenv("MINIO_ACCESS_KEY")
	c.Storage.SecretKey = os.Getenv("MINIO_SECRET_KEY")
	c.Storage.Bucket = strings.TrimSpace(os.Getenv("MINIO_BUCKET"))
	c.Storage.UseSSL, parseErrs = boolOr(parseErrs, "MINIO_USE_SSL", false)
	c.Storage.PublicURL = strings.TrimRight(strings.TrimSpace(os.Getenv("MINIO_PUBLIC_URL")), "/")

	c.NATS.URL = strings.TrimSpace(os.Getenv("NATS_URL"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required settings and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.PublicBaseURL == "" {
		errs = append(errs, errors.New("PUBLIC_BASE_URL is required"))
	} else if u, err := url.Parse(c.App.PublicBaseURL); err != nil || u.Host == "" {
		errs = append(errs, fmt.Errorf("PUBLIC_BASE_URL must be an absolute URL, got %q", c.App.PublicBaseURL))
	}
	if c.App.DefaultCountryCode == "" {
		c.App.DefaultCountryCode = "+91"
	} else if !strings.HasPrefix(c.App.DefaultCountryCode, "+") {
		errs = append(errs, fmt.Errorf("DEFAULT_COUNTRY_CODE must start with '+', got %q", c.App.DefaultCountryCode))
	}
	if c.App.MaxActiveCalls <= 0 {
		errs = append(errs, fmt.Errorf("MAX_ACTIVE_CALLS must be > 0, got %d", c.App.MaxActiveCalls))
	}
	if c.App.AnalysisTimeout <= 0 {
		c.App.AnalysisTimeout = 45 * time.Second
	}
	if c.App.CallbackPollInterval <= 0 {
		c.App.CallbackPollInterval = 30 * time.Second
	}

	if c.DB.URL == "" {
		if c.DB.Host == "" {
			errs = append(errs, errors.New("DB_HOST or DATABASE_URL is required"))
		}
		if c.DB.Port <= 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required"))
		}
		if c.DB.SSLMode == "" {
			if c.IsProduction() {
				errs = append(errs, errors.New("DB_SSLMODE is required in production"))
			} else {
				// Local-friendly default; production must be explicit.
				c.DB.SSLMode = "disable"
			}
		}
		if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.IsProduction() {
		if c.Auth.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required in production"))
		}
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" {
		errs = append(errs, errors.New("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN are required"))
	}
	if c.Twilio.FromNumber == "" {
		errs = append(errs, errors.New("TWILIO_FROM_NUMBER is required"))
	}

	if c.Speech.DeepgramAPIKey == "" {
		errs = append(errs, errors.New("DEEPGRAM_API_KEY is required"))
	}
	if c.Speech.ElevenLabsAPIKey == "" {
		errs = append(errs, errors.New("ELEVENLABS_API_KEY is required"))
	}
	if c.Speech.VoiceID == "" {
		c.Speech.VoiceID = "Rachel"
	}
	if c.Speech.TTSModel == "" {
		c.Speech.TTSModel = "eleven_turbo_v2_5"
	}
	if c.Speech.STTModel == "" {
		c.Speech.STTModel = "nova-2"
	}
	if c.Speech.Language == "" {
		c.Speech.Language = "en-IN"
	}

	if c.LLM.APIKey == "" {
		errs = append(errs, errors.New("LLM_API_KEY is required"))
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://openrouter.ai/api/v1"
	}
	if c.LLM.ConversationModel == "" {
		c.LLM.ConversationModel = "openai/gpt-4o-mini"
	}
	if c.LLM.AnalysisModel == "" {
		c.LLM.AnalysisModel = c.LLM.ConversationModel
	}

	if c.Storage.Endpoint != "" {
		if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
			errs = append(errs, errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when MINIO_ENDPOINT is set"))
		}
		if c.Storage.Bucket == "" {
			c.Storage.Bucket = "call-recordings"
		}
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

// AuthEnabled reports whether operator endpoints require bearer tokens.
func (c Config) AuthEnabled() bool {
	return c.Auth.JWTSecret != ""
}

// RecordingEnabled reports whether call audio is captured and uploaded.
func (c Config) RecordingEnabled() bool {
	return c.Storage.Endpoint != ""
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	if c.DB.URL != "" {
		return c.DB.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// StreamURL is the media-stream websocket endpoint handed to the carrier.
func (c Config) StreamURL() string {
	u, err := url.Parse(c.App.PublicBaseURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	default:
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}

// StatusCallbackURL receives carrier call status updates.
func (c Config) StatusCallbackURL() string {
	return c.App.PublicBaseURL + "/twilio-call-status"
}

func intOr(errs []error, key string, def int) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func boolOr(errs []error, key string, def bool) (bool, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, errs
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, append(errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
	}
	return b, errs
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
