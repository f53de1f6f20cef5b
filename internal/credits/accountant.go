// Package credits implements the Credit Accountant (spec §4.B): per-user
// quota accounting with ceiling-division cost computation and atomic,
// condition-gated store mutations.
package credits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agentcore/internal/config"
	"agentcore/internal/coreerr"
	"agentcore/internal/observability"
	"agentcore/internal/store"

	"github.com/google/uuid"
)

// ErrInsufficient is returned by Deduct when the user's balance cannot cover
// cost; the caller must not retry without a grant.
var ErrInsufficient = errors.New("credits: insufficient balance")

const (
	pkUser  = "USER#%s"
	skProfile = "PROFILE"
	pkAudit = "AUDIT#%s"
)

// Accountant is the credit accountant over a Durable Store.
type Accountant struct {
	st    store.Store
	rates map[string]Rate
	plans map[string]config.PlanLimits
}

// New constructs an Accountant backed by st, using the static/YAML-overridden
// rate table and the configured plan stipends.
func New(st store.Store, plans map[string]config.PlanLimits) *Accountant {
	return &Accountant{st: st, rates: LoadRates(), plans: plans}
}

// Cost computes the credit price of one provider call. Models whose id
// begins "local-" are free; every other model floors to 1 credit even at
// zero token usage (spec §8 boundary behaviour).
func (a *Accountant) Cost(modelID string, inputTokens, outputTokens int) int64 {
	if strings.HasPrefix(modelID, "local-") {
		return 0
	}
	rate, ok := a.rates[modelID]
	if !ok {
		rate = Rate{Input: 1, Output: 1}
	}
	in := ceilDiv1000(int64(inputTokens), rate.Input)
	out := ceilDiv1000(int64(outputTokens), rate.Output)
	cost := in + out
	if cost < 1 {
		cost = 1
	}
	return cost
}

// ceilDiv1000 computes ceil(tokens * rate / 1000) without floating-point
// drift affecting the ceiling, by scaling the rate to an integer numerator.
func ceilDiv1000(tokens int64, rate float64) int64 {
	if tokens == 0 || rate == 0 {
		return 0
	}
	// rate is credits per 1000 tokens; scale by 1e6 to keep two decimal
	// places of rate precision while staying in integer arithmetic.
	const scale = 1_000_000
	numerator := tokens * int64(rate*scale)
	denom := int64(1000 * scale)
	q := numerator / denom
	if numerator%denom != 0 {
		q++
	}
	return q
}

// Remaining returns the user's current credits_remaining, treating a
// missing profile as zero balance rather than an error (spec §4.G Preflight:
// "if credits_remaining <= 0 emit an error event with action upgrade").
func (a *Accountant) Remaining(ctx context.Context, userID string) (int64, error) {
	rec, err := a.st.Get(ctx, fmt.Sprintf(pkUser, userID), skProfile)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, nil
		}
		return 0, coreerr.Wrap(coreerr.KindPersistenceUnavailable, fmt.Errorf("read profile: %w", err))
	}
	switch v := rec.Item["credits_remaining"].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, nil
	}
}

// Deduct atomically decrements the user's credits_remaining by cost,
// conditioned on credits_remaining >= cost. On failure it returns
// ErrInsufficient without mutating the store.
func (a *Accountant) Deduct(ctx context.Context, userID string, cost int64) (remaining int64, err error) {
	cond := &store.Condition{MinRemaining: &store.FieldAtLeast{Field: "credits_remaining", Value: cost}}
	remaining, err = a.st.Increment(ctx, fmt.Sprintf(pkUser, userID), skProfile, "credits_remaining", -cost, cond)
	if err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return 0, coreerr.Wrap(coreerr.KindInsufficient, ErrInsufficient)
		}
		return 0, coreerr.Wrap(coreerr.KindPersistenceUnavailable, fmt.Errorf("deduct: %w", err))
	}
	if _, err := a.st.Increment(ctx, fmt.Sprintf(pkUser, userID), skProfile, "credits_used", cost, nil); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("credits_used increment failed")
	}
	return remaining, nil
}

// Grant atomically increments the user's credits_remaining by amount and
// writes a fire-and-forget audit entry.
func (a *Accountant) Grant(ctx context.Context, userID string, amount int64, source string) (remaining int64, err error) {
	remaining, err = a.st.Increment(ctx, fmt.Sprintf(pkUser, userID), skProfile, "credits_remaining", amount, nil)
	if err != nil {
		return 0, coreerr.Wrap(coreerr.KindPersistenceUnavailable, fmt.Errorf("grant: %w", err))
	}
	a.audit(ctx, userID, "credit_grant", map[string]any{"amount": amount, "source": source})
	return remaining, nil
}

// PassiveGrant grants the plan's daily stipend on the first successful chat
// of a UTC day, idempotent via a last_passive_grant == today check.
func (a *Accountant) PassiveGrant(ctx context.Context, userID, plan string) error {
	today := time.Now().UTC().Format("2006-01-02")
	rec, err := a.st.Get(ctx, fmt.Sprintf(pkUser, userID), skProfile)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return coreerr.Wrap(coreerr.KindPersistenceUnavailable, fmt.Errorf("read profile: %w", err))
	}
	if err == nil {
		if last, ok := rec.Item["last_passive_grant"].(string); ok && last == today {
			return nil
		}
	}
	limits, ok := a.plans[plan]
	if !ok {
		limits = a.plans["free"]
	}
	if _, err := a.Grant(ctx, userID, limits.DailyStipend, "passive_daily"); err != nil {
		return err
	}
	if err := a.st.SetField(ctx, fmt.Sprintf(pkUser, userID), skProfile, "last_passive_grant", today); err != nil {
		return coreerr.Wrap(coreerr.KindPersistenceUnavailable, fmt.Errorf("set last_passive_grant: %w", err))
	}
	return nil
}

// audit writes a fire-and-forget, non-critical audit log entry (spec §7:
// audit log writes fail open).
func (a *Accountant) audit(ctx context.Context, userID, kind string, details map[string]any) {
	day := time.Now().UTC().Format("2006-01-02")
	sk := fmt.Sprintf("%d#%s", time.Now().UnixMilli(), uuid.NewString())
	item := store.Item{"event_kind": kind, "user_id": userID, "details": details}
	item = store.WithTTL(item, 90*24*time.Hour)
	if err := a.st.Put(ctx, fmt.Sprintf(pkAudit, day), sk, item, nil); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Str("event_kind", kind).Msg("audit log write failed")
	}
}
