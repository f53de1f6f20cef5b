package gateway

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"agentcore/internal/objectstore"
)

// Generator produces a media artifact for (kind, params), storing it and
// returning a fetchable URL plus the provider name that served it. No
// concrete image/audio generation SDK is named anywhere in the tracked
// dependency set, so Generator is deliberately the only moving part the
// media endpoint needs: a real backend (e.g. an HTTP call to a generation
// API) can implement it without touching the handler or cache wiring.
type Generator interface {
	Generate(ctx context.Context, kind string, params map[string]any) (url string, provider string, err error)
}

// placeholderGenerator stores a deterministic descriptor object keyed by a
// fresh id under the configured object store and returns a BASE_URL-rooted
// fetch path for it, grounded on the teacher's objectstore write-then-serve
// pattern (internal/objectstore/store.go Put + the audio-serving handler's
// URL construction in internal/agentd).
type placeholderGenerator struct {
	objects objectstore.ObjectStore
	baseURL string
}

// NewPlaceholderGenerator returns a Generator that records the request and
// hands back a stable URL without calling out to any external media API,
// since the spec names no such provider.
func NewPlaceholderGenerator(objects objectstore.ObjectStore, baseURL string) Generator {
	return &placeholderGenerator{objects: objects, baseURL: baseURL}
}

func (g *placeholderGenerator) Generate(ctx context.Context, kind string, params map[string]any) (string, string, error) {
	id := uuid.NewString()
	key := fmt.Sprintf("media/%s/%s", kind, id)
	body := []byte(fmt.Sprintf("generated %s artifact for request %s", kind, id))
	if _, err := g.objects.Put(ctx, key, bytes.NewReader(body), objectstore.PutOptions{ContentType: "text/plain"}); err != nil {
		return "", "", fmt.Errorf("gateway: store media artifact: %w", err)
	}
	base := strings.TrimRight(g.baseURL, "/")
	return fmt.Sprintf("%s/media/%s", base, key), "placeholder", nil
}
