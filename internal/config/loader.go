package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load reads configuration from environment variables (optionally .env).
// Mirrors the plural-with-singular-fallback convention used throughout this
// repository for secret configuration: "*_KEYS" (comma separated pool) falls
// back to the singular "*_KEY".
func Load() (Config, error) {
	// Use Overload so .env values override existing OS environment variables,
	// letting local repository configuration deterministically drive
	// development runs unless explicitly overridden.
	_ = godotenv.Overload()

	cfg := Config{Plans: DefaultPlans()}

	cfg.HTTPAddr = firstNonEmpty(strings.TrimSpace(os.Getenv("HTTP_ADDR")), ":8080")

	cfg.OpenAI = ProviderConfig{
		Keys:    keyPool("OPENAI_API_KEYS", "OPENAI_API_KEY"),
		Model:   firstNonEmpty(strings.TrimSpace(os.Getenv("OPENAI_MODEL")), "gpt-4o-mini"),
		BaseURL: strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
	}
	cfg.Anthropic = ProviderConfig{
		Keys:    keyPool("ANTHROPIC_API_KEYS", "ANTHROPIC_API_KEY"),
		Model:   firstNonEmpty(strings.TrimSpace(os.Getenv("ANTHROPIC_MODEL")), "claude-3-7-sonnet-latest"),
		BaseURL: strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL")),
	}
	cfg.Google = ProviderConfig{
		Keys:    keyPool("GOOGLE_LLM_API_KEYS", "GOOGLE_LLM_API_KEY"),
		Model:   firstNonEmpty(strings.TrimSpace(os.Getenv("GOOGLE_LLM_MODEL")), "gemini-2.0-flash"),
		BaseURL: strings.TrimSpace(os.Getenv("GOOGLE_LLM_BASE_URL")),
	}

	cfg.Store.Backend = firstNonEmpty(strings.TrimSpace(os.Getenv("STORE_BACKEND")), "memory")
	cfg.Store.DatabaseURL = firstNonEmpty(strings.TrimSpace(os.Getenv("DATABASE_URL")), strings.TrimSpace(os.Getenv("DB_URL")))
	if cfg.Store.Backend == "" && cfg.Store.DatabaseURL != "" {
		cfg.Store.Backend = "postgres"
	}

	cfg.Redis.URL = strings.TrimSpace(os.Getenv("REDIS_URL"))

	cfg.S3.Bucket = strings.TrimSpace(os.Getenv("MEDIA_S3_BUCKET"))
	cfg.S3.Enabled = cfg.S3.Bucket != ""
	cfg.S3.Prefix = firstNonEmpty(strings.TrimSpace(os.Getenv("MEDIA_S3_PREFIX")), "media")
	cfg.S3.Region = firstNonEmpty(strings.TrimSpace(os.Getenv("MEDIA_S3_REGION")), "us-east-1")
	cfg.S3.Endpoint = strings.TrimSpace(os.Getenv("MEDIA_S3_ENDPOINT"))
	cfg.S3.AccessKey = strings.TrimSpace(os.Getenv("MEDIA_S3_ACCESS_KEY"))
	cfg.S3.SecretKey = strings.TrimSpace(os.Getenv("MEDIA_S3_SECRET_KEY"))

	cfg.Obs.ServiceName = firstNonEmpty(strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")), "agentcore")
	cfg.Obs.ServiceVersion = firstNonEmpty(strings.TrimSpace(os.Getenv("SERVICE_VERSION")), "dev")
	cfg.Obs.Environment = firstNonEmpty(strings.TrimSpace(os.Getenv("ENVIRONMENT")), "dev")
	cfg.Obs.OTLP = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))

	cfg.LogPath = strings.TrimSpace(os.Getenv("LOG_PATH"))
	cfg.LogLevel = firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), "info")
	if v := strings.TrimSpace(os.Getenv("LOG_PAYLOADS")); v != "" {
		cfg.LogPayloads = strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
	}

	cfg.AdminSessionKeys = parseCommaSeparatedList(strings.TrimSpace(os.Getenv("ADMIN_SESSION_KEYS")))
	cfg.PasswordHMACKey = strings.TrimSpace(os.Getenv("PASSWORD_HMAC_KEY"))
	cfg.BaseURL = strings.TrimSpace(os.Getenv("BASE_URL"))

	cfg.SandboxRoot = firstNonEmpty(strings.TrimSpace(os.Getenv("SANDBOX_ROOT")), "./sandboxes")

	if cfg.PasswordHMACKey == "" {
		return Config{}, errors.New("PASSWORD_HMAC_KEY is required (set in .env or environment)")
	}
	if len(cfg.OpenAI.Keys) == 0 && len(cfg.Anthropic.Keys) == 0 && len(cfg.Google.Keys) == 0 {
		return Config{}, errors.New("at least one of OPENAI_API_KEY(S), ANTHROPIC_API_KEY(S), GOOGLE_LLM_API_KEY(S) is required")
	}

	return cfg, nil
}

// keyPool reads a comma-separated pool from pluralKey, falling back to a
// single value from singularKey when the plural form is unset.
func keyPool(pluralKey, singularKey string) []string {
	if v := strings.TrimSpace(os.Getenv(pluralKey)); v != "" {
		return parseCommaSeparatedList(v)
	}
	if v := strings.TrimSpace(os.Getenv(singularKey)); v != "" {
		return []string{v}
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseCommaSeparatedList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
