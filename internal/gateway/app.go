// Package gateway assembles every core component into the HTTP boundary
// named in spec §6: a thin net/http router over the Agentic Loop, Media
// Cache, and object store, grounded on the teacher's internal/agentd
// app/router/handler split (internal/agentd/run.go, router.go).
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"agentcore/internal/agent"
	"agentcore/internal/config"
	"agentcore/internal/credits"
	"agentcore/internal/llm"
	"agentcore/internal/llm/anthropic"
	"agentcore/internal/llm/fabric"
	"agentcore/internal/llm/google"
	"agentcore/internal/llm/keypool"
	"agentcore/internal/llm/openai"
	"agentcore/internal/media"
	"agentcore/internal/memory"
	"agentcore/internal/objectstore"
	"agentcore/internal/observability"
	"agentcore/internal/ratelimit"
	"agentcore/internal/session"
	"agentcore/internal/store"
	"agentcore/internal/tools"
	"agentcore/internal/tools/calculator"
	"agentcore/internal/tools/filetool"
	"agentcore/internal/tools/shelltool"
	"agentcore/internal/tools/web"
)

// App wires every component the gateway handlers need. Constructed once in
// cmd/gateway/main.go and passed to NewRouter.
type App struct {
	cfg     config.Config
	engine  *agent.Engine
	media   *media.Cache
	objects objectstore.ObjectStore
	gen     Generator
}

// New constructs the fully wired App: Durable Store, Provider Fabric (with
// key-pool rotation per provider), Tool Registry, Credit Accountant, Memory
// Store, Rate Limiter, Session Store, Media Cache, and the Agentic Loop
// engine over all of them.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("gateway: init store: %w", err)
	}

	httpClient := observability.NewHTTPClient(nil)

	fab := fabric.New(map[fabric.Tier]string{
		fabric.TierSmart:    firstNonEmpty(cfg.Anthropic.Model, cfg.OpenAI.Model, cfg.Google.Model),
		fabric.TierStandard: firstNonEmpty(cfg.OpenAI.Model, cfg.Anthropic.Model, cfg.Google.Model),
		fabric.TierCheap:    firstNonEmpty(cfg.Google.Model, cfg.OpenAI.Model, cfg.Anthropic.Model),
	})

	if len(cfg.OpenAI.Keys) > 0 {
		p, err := rotatingOpenAI(st, cfg.OpenAI, httpClient)
		if err != nil {
			return nil, fmt.Errorf("gateway: init openai provider: %w", err)
		}
		fab.Register("openai", p)
	}
	if len(cfg.Anthropic.Keys) > 0 {
		p, err := rotatingAnthropic(st, cfg.Anthropic, httpClient)
		if err != nil {
			return nil, fmt.Errorf("gateway: init anthropic provider: %w", err)
		}
		fab.Register("anthropic", p)
	}
	if len(cfg.Google.Keys) > 0 {
		p, err := rotatingGoogle(st, cfg.Google, httpClient)
		if err != nil {
			return nil, fmt.Errorf("gateway: init google provider: %w", err)
		}
		fab.Register("google", p)
	}

	reg := tools.NewRegistry()
	reg.Register(calculator.New())
	reg.Register(filetool.NewReadTool())
	reg.Register(filetool.NewWriteTool())
	reg.Register(web.NewFetchTool())
	reg.Register(shelltool.New(shelltool.DefaultConfig()))

	limiter := ratelimitFor(cfg, st)

	eng := &agent.Engine{
		Provider:    fab,
		Tools:       reg,
		Credits:     credits.New(st, cfg.Plans),
		Sessions:    session.New(st),
		Memory:      memory.New(st, fab),
		RateLimiter: limiter,
		SandboxRoot: cfg.SandboxRoot,
		Plans:       cfg.Plans,
	}

	mediaCache := media.New(st)

	var objects objectstore.ObjectStore
	var gen Generator
	if cfg.S3.Enabled {
		s3store, err := objectstore.NewS3Store(ctx, cfg.S3)
		if err != nil {
			log.Warn().Err(err).Msg("gateway: s3 object store unavailable, media generation disabled")
		} else {
			objects = s3store
		}
	} else {
		objects = objectstore.NewMemoryStore()
	}
	if objects != nil {
		gen = NewPlaceholderGenerator(objects, cfg.BaseURL)
	}

	return &App{cfg: cfg, engine: eng, media: mediaCache, objects: objects, gen: gen}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func rotatingOpenAI(st store.Store, pc config.ProviderConfig, httpClient *http.Client) (llm.Provider, error) {
	pool := keypool.New("openai", pc.Keys, st)
	return keypool.NewRotating("openai", pool, func(apiKey string) llm.Provider {
		return openai.New("openai", apiKey, pc, httpClient)
	})
}

func rotatingAnthropic(st store.Store, pc config.ProviderConfig, httpClient *http.Client) (llm.Provider, error) {
	pool := keypool.New("anthropic", pc.Keys, st)
	return keypool.NewRotating("anthropic", pool, func(apiKey string) llm.Provider {
		return anthropic.New("anthropic", apiKey, pc, httpClient)
	})
}

func rotatingGoogle(st store.Store, pc config.ProviderConfig, httpClient *http.Client) (llm.Provider, error) {
	pool := keypool.New("google", pc.Keys, st)
	return keypool.NewRotating("google", pool, func(apiKey string) llm.Provider {
		c, err := google.New("google", apiKey, pc, httpClient)
		if err != nil {
			// Rotating's build func has no error return; a construction
			// failure here surfaces as a provider that errors on every call,
			// which the fabric's health tracker then cools down like any
			// other failing provider.
			return brokenProvider{id: "google", err: err}
		}
		return c
	})
}

// brokenProvider reports err from every call; used when a provider client
// fails to construct for a specific key so the fabric can still fail over
// instead of panicking during App.New.
type brokenProvider struct {
	id  string
	err error
}

func (b brokenProvider) ID() string       { return b.id }
func (b brokenProvider) Models() []string { return nil }
func (b brokenProvider) Chat(context.Context, llm.ChatRequest) (llm.ChatResponse, error) {
	return llm.ChatResponse{}, b.err
}
func (b brokenProvider) ChatStream(context.Context, llm.ChatRequest, llm.StreamHandler) (llm.ChatResponse, error) {
	return llm.ChatResponse{}, b.err
}

func ratelimitFor(cfg config.Config, st store.Store) ratelimit.Limiter {
	if cfg.Redis.URL == "" {
		return ratelimit.NewStoreLimiter(st)
	}
	addr := strings.TrimPrefix(cfg.Redis.URL, "redis://")
	return ratelimit.NewRedisLimiter(addr)
}
