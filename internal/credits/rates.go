package credits

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rate is the credits-per-1000-tokens price for one model.
type Rate struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// defaultRates is the built-in static table; a deployment may override it by
// pointing MODEL_RATES_CONFIG at a YAML file of the same shape.
var defaultRates = map[string]Rate{
	"gpt-4o-mini":              {Input: 0.15, Output: 0.6},
	"gpt-4o":                   {Input: 2.5, Output: 10},
	"claude-3-7-sonnet-latest": {Input: 3, Output: 15},
	"claude-3-5-haiku-latest":  {Input: 0.8, Output: 4},
	"gemini-2.0-flash":         {Input: 0.1, Output: 0.4},
	"gemini-2.5-pro":           {Input: 1.25, Output: 5},
}

// LoadRates returns the default table, merged with overrides from a YAML
// file if MODEL_RATES_CONFIG is set and readable. Missing/unparseable files
// are non-fatal — the built-in table still applies.
func LoadRates() map[string]Rate {
	out := make(map[string]Rate, len(defaultRates))
	for k, v := range defaultRates {
		out[k] = v
	}
	path := strings.TrimSpace(os.Getenv("MODEL_RATES_CONFIG"))
	if path == "" {
		return out
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return out
	}
	var overrides map[string]Rate
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return out
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
