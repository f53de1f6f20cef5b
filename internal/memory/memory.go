// Package memory implements the two-tier Memory Store (spec §4.C): a daily
// append-only log per user, consolidated into a long-term summary once it
// crosses a size threshold. Grounded on the teacher's
// agentic_memory.go summarization call (internal/sefii.SummarizeChunk),
// generalized from a vector-indexed note store to the store-backed daily/
// long-term split the spec calls for.
package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"agentcore/internal/llm"
	"agentcore/internal/observability"
	"agentcore/internal/store"
)

const (
	skLongTerm = "LONG_TERM"

	consolidationThresholdBytes = 8 * 1024
	contextBudgetBytes          = 16 * 1024
	lockTTL                     = 120 * time.Second
)

// Chatter is the subset of the Provider Fabric the Memory Store needs to
// summarize a day's log. Declared locally so this package does not import
// the fabric package directly, avoiding an import cycle with callers that
// wire both.
type Chatter interface {
	Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error)
	SmartestModel() (string, error)
}

// Store is the two-tier memory store over a Durable Store.
type Store struct {
	st     store.Store
	chat   Chatter
}

// New constructs a Store. chat may be nil; consolidation becomes a no-op
// in that case (useful for tests that don't exercise summarization).
func New(st store.Store, chat Chatter) *Store {
	return &Store{st: st, chat: chat}
}

func pkUser(userID string) string       { return fmt.Sprintf("MEMORY#%s", userID) }
func skDaily(day string) string         { return fmt.Sprintf("DAILY#%s", day) }
func pkLock(userID string) string       { return fmt.Sprintf("MEMORY_LOCK#%s", userID) }
func today() string                     { return time.Now().UTC().Format("2006-01-02") }
func yesterday() string                 { return time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02") }

// ReadContext assembles the context string the agent loop injects ahead of
// a conversation: the long-term summary, then yesterday's daily log, then
// today's, each under a labelled header. When the total exceeds
// contextBudgetBytes, yesterday's log is dropped first, then sections are
// dropped from the front until the total fits or only one remains (spec
// §4.C read_context).
func (s *Store) ReadContext(ctx context.Context, userID string) (string, error) {
	var sections []string
	yIdx := -1

	if rec, err := s.st.Get(ctx, pkUser(userID), skLongTerm); err == nil {
		if text, _ := rec.Item["text"].(string); text != "" {
			sections = append(sections, "## Long-term memory\n"+text)
		}
	}
	if rec, err := s.st.Get(ctx, pkUser(userID), skDaily(yesterday())); err == nil {
		if text, _ := rec.Item["text"].(string); text != "" {
			yIdx = len(sections)
			sections = append(sections, "## Yesterday\n"+text)
		}
	}
	if rec, err := s.st.Get(ctx, pkUser(userID), skDaily(today())); err == nil {
		if text, _ := rec.Item["text"].(string); text != "" {
			sections = append(sections, "## Today\n"+text)
		}
	}

	if yIdx >= 0 && totalLen(sections) > contextBudgetBytes && len(sections) > 1 {
		sections = append(sections[:yIdx], sections[yIdx+1:]...)
	}
	for totalLen(sections) > contextBudgetBytes && len(sections) > 1 {
		sections = sections[1:]
	}
	return strings.Join(sections, "\n\n"), nil
}

func totalLen(sections []string) int {
	n := 0
	for _, s := range sections {
		n += len(s)
	}
	return n
}

// AppendDaily appends turn to today's daily log under retry, since two
// concurrent appends for the same user must not clobber each other.
func (s *Store) AppendDaily(ctx context.Context, userID, turn string) error {
	pk, sk := pkUser(userID), skDaily(today())
	const maxAttempts = 5
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		rec, err := s.st.Get(ctx, pk, sk)
		existing := ""
		if err == nil {
			existing, _ = rec.Item["text"].(string)
		}
		updated := turn
		if existing != "" {
			updated = existing + "\n" + turn
		}
		item := store.Item{"text": updated, "day": today()}
		putErr := s.st.Put(ctx, pk, sk, item, nil)
		if putErr == nil {
			if len(updated) >= consolidationThresholdBytes {
				go s.consolidateAsync(userID)
			}
			return nil
		}
		lastErr = putErr
	}
	return fmt.Errorf("memory: append_daily exhausted retries: %w", lastErr)
}

// consolidateAsync launches Consolidate on its own goroutine with a detached
// context, matching the spec's "triggered fire-and-forget" wording.
func (s *Store) consolidateAsync(userID string) {
	ctx := context.Background()
	if err := s.Consolidate(ctx, userID); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Str("user_id", userID).Msg("memory consolidation failed")
	}
}

// Consolidate summarizes today's daily log into the long-term summary via
// the smartest configured model, then truncates the daily log. It is
// single-flight per user: a conditional-write lock with a short ttl
// collapses simultaneous triggers into one (spec §4.C).
func (s *Store) Consolidate(ctx context.Context, userID string) error {
	if s.chat == nil {
		return nil
	}

	lockItem := store.WithTTL(store.Item{"locked": true}, lockTTL)
	if err := s.st.Put(ctx, pkLock(userID), "LOCK", lockItem, &store.Condition{IfAbsent: true}); err != nil {
		if err == store.ErrConditionFailed {
			return nil // another goroutine is already consolidating this user
		}
		return fmt.Errorf("memory: acquire consolidation lock: %w", err)
	}

	rec, err := s.st.Get(ctx, pkUser(userID), skDaily(today()))
	if err != nil {
		return nil // nothing to consolidate
	}
	dailyText, _ := rec.Item["text"].(string)
	if strings.TrimSpace(dailyText) == "" {
		return nil
	}

	longTermText := ""
	if ltRec, err := s.st.Get(ctx, pkUser(userID), skLongTerm); err == nil {
		longTermText, _ = ltRec.Item["text"].(string)
	}

	model, err := s.chat.SmartestModel()
	if err != nil {
		return fmt.Errorf("memory: resolve smartest model: %w", err)
	}

	resp, err := s.chat.Chat(ctx, llm.ChatRequest{
		Model: model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "Merge the new notes into the existing summary. Keep it concise and factual. Return only the updated summary text."},
			{Role: llm.RoleUser, Content: fmt.Sprintf("Existing summary:\n%s\n\nNew notes:\n%s", longTermText, dailyText)},
		},
		MaxTokens: 1024,
	})
	if err != nil {
		return fmt.Errorf("memory: consolidation chat call: %w", err)
	}

	if err := s.st.Put(ctx, pkUser(userID), skLongTerm, store.Item{"text": resp.Message.Content}, nil); err != nil {
		return fmt.Errorf("memory: write long-term summary: %w", err)
	}
	if err := s.st.Put(ctx, pkUser(userID), skDaily(today()), store.Item{"text": "", "day": today()}, nil); err != nil {
		return fmt.Errorf("memory: truncate daily log: %w", err)
	}
	return nil
}
