// agentcore/internal/config
package config

// ProviderConfig holds the connection details for one LLM endpoint family.
type ProviderConfig struct {
	Keys    []string // ordered key pool, first is current
	Model   string
	BaseURL string
}

// StoreConfig selects and configures the Durable Store backend.
type StoreConfig struct {
	Backend     string // "memory" | "postgres"
	DatabaseURL string
}

// RedisConfig configures the optional Redis-backed rate limiter.
type RedisConfig struct {
	URL string // empty disables Redis; falls back to the durable store
}

// S3Config configures the optional S3-compatible media artifact store.
type S3Config struct {
	Enabled   bool
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// ObsConfig controls OpenTelemetry tracing/metrics export.
type ObsConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLP           string
}

// PlanLimits describes the per-plan knobs referenced by the credit accountant
// and the agentic loop (max_iterations, daily stipend).
type PlanLimits struct {
	MaxIterations int
	DailyStipend  int64
}

// Config is the single, immutable configuration object assembled once at
// startup in cmd/gateway/main.go and threaded down to every component.
type Config struct {
	HTTPAddr string

	OpenAI    ProviderConfig
	Anthropic ProviderConfig
	Google    ProviderConfig

	Store StoreConfig
	Redis RedisConfig
	S3    S3Config
	Obs   ObsConfig

	LogPath     string
	LogLevel    string
	LogPayloads bool

	AdminSessionKeys []string
	PasswordHMACKey  string
	BaseURL          string

	SandboxRoot string

	Plans map[string]PlanLimits
}

// DefaultPlans is the static plan table: free/starter/pro/enterprise map to
// the max_iterations(plan) values named in the agentic loop contract.
func DefaultPlans() map[string]PlanLimits {
	return map[string]PlanLimits{
		"free":       {MaxIterations: 1, DailyStipend: 20},
		"starter":    {MaxIterations: 3, DailyStipend: 100},
		"pro":        {MaxIterations: 5, DailyStipend: 500},
		"enterprise": {MaxIterations: 5, DailyStipend: 5000},
	}
}
