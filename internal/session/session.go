// Package session implements the Session Store (spec §4.I): a map from
// session_key to short-term conversation history, write-through persisted to
// the Durable Store under SESSION#{session_key}. Grounded on the same
// store-backed single-record pattern as internal/memory's daily log, trading
// memory's append-and-consolidate shape for a fixed-window ring of turns.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"agentcore/internal/llm"
	"agentcore/internal/store"
)

// maxTurns bounds the retained history to the last 20 user/assistant pairs
// (spec §4.I, §4.G Assemble step).
const maxTurns = 20

const skHistory = "HISTORY"

// Session is one conversation's short-term state.
type Session struct {
	SessionKey  string
	Messages    []llm.Message
	SyncVersion int64
	UpdatedAt   time.Time
}

// wireMessage is the JSON-stable encoding of llm.Message stored in the
// durable record; llm.ToolCall.Args is already json.RawMessage so it
// round-trips without a custom MarshalJSON.
type wireMessage struct {
	Role      llm.Role        `json:"role"`
	Content   string          `json:"content"`
	ToolID    string          `json:"tool_id,omitempty"`
	ToolCalls []llm.ToolCall  `json:"tool_calls,omitempty"`
}

// Store is the Session Store over a Durable Store backend.
type Store struct {
	st store.Store

	// mu guards save-then-clone so concurrent requests on the same process
	// never interleave a partial write (spec §5 "Session map: guarded by a
	// sync.RWMutex during save; readers clone the slice").
	mu sync.RWMutex
}

// New constructs a Session Store.
func New(st store.Store) *Store {
	return &Store{st: st}
}

func pk(sessionKey string) string { return fmt.Sprintf("SESSION#%s", sessionKey) }

// Load returns the session for key, creating an empty in-memory one on the
// fly if no record exists yet — readers tolerate missing sessions (spec
// §4.I).
func (s *Store) Load(ctx context.Context, sessionKey string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadLocked(ctx, sessionKey)
}

// Append adds newMessages to the session's history, trims to the last
// maxTurns user/assistant pairs, bumps the sync version, and writes through
// to the durable store (spec §4.G Persist step: "update session history;
// bump session sync version").
func (s *Store) Append(ctx context.Context, sessionKey string, newMessages ...llm.Message) (*Session, error) {
	if len(newMessages) == 0 {
		return s.Load(ctx, sessionKey)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.loadLocked(ctx, sessionKey)
	if err != nil {
		return nil, err
	}

	sess.Messages = append(sess.Messages, newMessages...)
	sess.Messages = trimToWindow(sess.Messages, maxTurns)
	sess.SyncVersion++
	sess.UpdatedAt = time.Now().UTC()

	wire := make([]wireMessage, 0, len(sess.Messages))
	for _, m := range sess.Messages {
		wire = append(wire, wireMessage{
			Role:      m.Role,
			Content:   m.Content,
			ToolID:    m.ToolID,
			ToolCalls: m.ToolCalls,
		})
	}
	encoded, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("session: encode history for %q: %w", sessionKey, err)
	}

	item := store.Item{
		"messages":     string(encoded),
		"sync_version": sess.SyncVersion,
	}
	if err := s.st.Put(ctx, pk(sessionKey), skHistory, item, nil); err != nil {
		return nil, fmt.Errorf("session: persist %q: %w", sessionKey, err)
	}

	return sess, nil
}

func (s *Store) loadLocked(ctx context.Context, sessionKey string) (*Session, error) {
	rec, err := s.st.Get(ctx, pk(sessionKey), skHistory)
	if err != nil {
		if err == store.ErrNotFound {
			return &Session{SessionKey: sessionKey}, nil
		}
		return nil, fmt.Errorf("session: load %q: %w", sessionKey, err)
	}

	raw, _ := rec.Item["messages"].(string)
	var wire []wireMessage
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &wire); err != nil {
			return nil, fmt.Errorf("session: decode history for %q: %w", sessionKey, err)
		}
	}
	messages := make([]llm.Message, 0, len(wire))
	for _, m := range wire {
		messages = append(messages, llm.Message{
			Role:      m.Role,
			Content:   m.Content,
			ToolID:    m.ToolID,
			ToolCalls: m.ToolCalls,
		})
	}

	var version int64
	switch v := rec.Item["sync_version"].(type) {
	case int64:
		version = v
	case float64:
		version = int64(v)
	}

	return &Session{SessionKey: sessionKey, Messages: messages, SyncVersion: version}, nil
}

// trimToWindow keeps only the last maxPairs user/assistant exchanges, always
// dropping from the front so the most recent turns survive. A "pair" is
// counted loosely as two messages since tool messages interleave within a
// single exchange; the cap is applied as 2*maxPairs messages.
func trimToWindow(messages []llm.Message, maxPairs int) []llm.Message {
	limit := maxPairs * 2
	if len(messages) <= limit {
		return messages
	}
	return messages[len(messages)-limit:]
}
