// Package fabric composes multiple llm.Provider instances into the single
// load-balanced, failover-aware entry point the Agentic Loop calls (spec
// §4.D), grounded on the teacher's provider-selection patterns generalized
// from a single configured provider into a routed multi-provider fabric.
package fabric

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"agentcore/internal/llm"
	"agentcore/internal/llm/health"

	"golang.org/x/sync/errgroup"
)

// ErrAllProvidersFailed is returned when every provider capable of serving a
// model has failed or is in cooldown.
var ErrAllProvidersFailed = errors.New("fabric: all providers failed")

// Tier names the three routing tiers the agent loop selects by task weight.
type Tier string

const (
	TierSmart    Tier = "smart"
	TierStandard Tier = "standard"
	TierCheap    Tier = "cheap"
)

// registeredProvider pairs a Provider with the family it was registered
// under. The family is only stored: routing matches req.Model against
// Provider.Models() exactly as given, without normalizing it.
type registeredProvider struct {
	family   string
	provider llm.Provider
}

// Fabric round-robins across providers capable of serving a requested model
// and fails over to the next healthy one on error.
type Fabric struct {
	providers []registeredProvider
	health    *health.Tracker
	rrCounter atomic.Uint64
	tierModel map[Tier]string // tier -> normalized model id
}

// New constructs a Fabric with no providers and the given tier-to-model
// table; providers are added with Register.
func New(tierModel map[Tier]string) *Fabric {
	return &Fabric{health: health.New(), tierModel: tierModel}
}

// Register adds a provider under family ("openai" | "anthropic" | "google").
func (f *Fabric) Register(family string, p llm.Provider) {
	f.providers = append(f.providers, registeredProvider{family: family, provider: p})
}

// ModelForTier resolves a routing tier to the concrete model id configured
// for it (spec §4.D get_smartest_model / get_tier_model).
func (f *Fabric) ModelForTier(tier Tier) (string, error) {
	m, ok := f.tierModel[tier]
	if !ok || m == "" {
		return "", fmt.Errorf("fabric: no model configured for tier %q", tier)
	}
	return m, nil
}

// SmartestModel resolves the model configured for TierSmart, used by the
// Memory Store's consolidation step.
func (f *Fabric) SmartestModel() (string, error) {
	return f.ModelForTier(TierSmart)
}

// candidatesFor returns providers capable of serving model, starting at the
// fabric's round-robin cursor and filtering out providers the health
// tracker currently considers down.
func (f *Fabric) candidatesFor(model string) []registeredProvider {
	n := len(f.providers)
	if n == 0 {
		return nil
	}
	start := int(f.rrCounter.Add(1)-1) % n
	ordered := make([]registeredProvider, 0, n)
	for i := 0; i < n; i++ {
		rp := f.providers[(start+i)%n]
		if !canServe(rp.provider, model) {
			continue
		}
		if f.health.Status(rp.provider.ID()) == health.StatusDown {
			continue
		}
		ordered = append(ordered, rp)
	}
	// If health filtering eliminated everyone, fall back to the unfiltered
	// set so a global outage doesn't strand every request in cooldown.
	if len(ordered) == 0 {
		for i := 0; i < n; i++ {
			rp := f.providers[(start+i)%n]
			if canServe(rp.provider, model) {
				ordered = append(ordered, rp)
			}
		}
	}
	return ordered
}

func canServe(p llm.Provider, model string) bool {
	if model == "" {
		return true
	}
	for _, m := range p.Models() {
		if m == model {
			return true
		}
	}
	return false
}

// Chat performs one non-streaming call, round-robining across providers
// capable of serving req.Model and failing over to the next one on error.
func (f *Fabric) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	candidates := f.candidatesFor(req.Model)
	if len(candidates) == 0 {
		return llm.ChatResponse{}, ErrAllProvidersFailed
	}
	var lastErr error
	for _, rp := range candidates {
		resp, err := rp.provider.Chat(ctx, req)
		if err == nil {
			f.health.RecordSuccess(rp.provider.ID())
			return resp, nil
		}
		f.health.RecordFailure(rp.provider.ID())
		lastErr = err
		if ctx.Err() != nil {
			return llm.ChatResponse{}, ctx.Err()
		}
	}
	return llm.ChatResponse{}, fmt.Errorf("%w: %v", ErrAllProvidersFailed, lastErr)
}

// ChatStream performs one streaming call with the same failover policy as
// Chat. Once the first delta has reached h, failover stops: switching
// providers mid-stream would duplicate output already sent to the client.
func (f *Fabric) ChatStream(ctx context.Context, req llm.ChatRequest, h llm.StreamHandler) (llm.ChatResponse, error) {
	candidates := f.candidatesFor(req.Model)
	if len(candidates) == 0 {
		return llm.ChatResponse{}, ErrAllProvidersFailed
	}
	var lastErr error
	for _, rp := range candidates {
		guard := &firstDeltaGuard{inner: h}
		resp, err := rp.provider.ChatStream(ctx, req, guard)
		if err == nil {
			f.health.RecordSuccess(rp.provider.ID())
			return resp, nil
		}
		f.health.RecordFailure(rp.provider.ID())
		lastErr = err
		if guard.delivered || ctx.Err() != nil {
			return llm.ChatResponse{}, err
		}
	}
	return llm.ChatResponse{}, fmt.Errorf("%w: %v", ErrAllProvidersFailed, lastErr)
}

// firstDeltaGuard tracks whether any output reached the real handler, so
// ChatStream knows whether failing over would duplicate visible output.
type firstDeltaGuard struct {
	inner     llm.StreamHandler
	delivered bool
}

func (g *firstDeltaGuard) OnDelta(content string) {
	g.delivered = true
	if g.inner != nil {
		g.inner.OnDelta(content)
	}
}

func (g *firstDeltaGuard) OnToolCall(tc llm.ToolCall) {
	g.delivered = true
	if g.inner != nil {
		g.inner.OnToolCall(tc)
	}
}

// RaceResult is one provider's outcome from ChatRace.
type RaceResult struct {
	ProviderID string
	Response   llm.ChatResponse
	Err        error
	Rank       int           // 1-based finish order among all participants
	Elapsed    time.Duration // time from the start of the race to this result
}

// ChatRace fires req concurrently at every provider capable of serving
// req.Model and returns every result, tagged with its finish order and
// elapsed time, once all have completed (or ctx is canceled). ChatRace
// deducts no credits itself and returns the full set rather than just a
// winner.
func (f *Fabric) ChatRace(ctx context.Context, req llm.ChatRequest) ([]RaceResult, error) {
	candidates := f.candidatesFor(req.Model)
	if len(candidates) == 0 {
		return nil, ErrAllProvidersFailed
	}
	results := make([]RaceResult, len(candidates))
	start := time.Now()
	var finished atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for i, rp := range candidates {
		i, rp := i, rp
		g.Go(func() error {
			resp, err := rp.provider.Chat(gctx, req)
			if err == nil {
				f.health.RecordSuccess(rp.provider.ID())
			} else {
				f.health.RecordFailure(rp.provider.ID())
			}
			results[i] = RaceResult{ProviderID: rp.provider.ID(), Response: resp, Err: err, Rank: int(finished.Add(1)), Elapsed: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}
