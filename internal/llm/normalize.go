package llm

import "strings"

// NormalizeModelID applies the fixed per-family normalization policy (spec
// §4.D) so callers can request a model either in its bare form or with a
// "provider/" prefix and land on the exact id each SDK expects.
//
// OpenAI and Anthropic models are requested bare; a leading "vendor/"
// prefix, whatever the vendor, is stripped. Google model ids always come out
// with a "google/" prefix: an existing one is kept, another vendor's prefix
// is replaced by it, and a bare id gains it (the genai SDK itself does not
// require a prefix). The fabric routes on model ids as given and does not
// call this function.
func NormalizeModelID(family, modelID string) string {
	id := strings.TrimSpace(modelID)
	switch family {
	case "openai":
		return stripKnownPrefix(id, "openai/")
	case "anthropic":
		return stripKnownPrefix(id, "anthropic/")
	case "google":
		if strings.HasPrefix(id, "google/") {
			return id
		}
		if idx := strings.Index(id, "/"); idx != -1 {
			return "google/" + id[idx+1:]
		}
		return "google/" + id
	default:
		return id
	}
}

func stripKnownPrefix(id, prefix string) string {
	if strings.HasPrefix(id, prefix) {
		return strings.TrimPrefix(id, prefix)
	}
	if idx := strings.Index(id, "/"); idx != -1 {
		return id[idx+1:]
	}
	return id
}
