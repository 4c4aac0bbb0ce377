package state

import (
	"context"
	"fmt"
	"time"
)

// State identifies a step of a conversation flow.
type State string

// StateIdle means no conversation is active.
const StateIdle State = ""

// Key identifies a session: the same user talking in two chats holds two sessions.
type Key struct {
	UserID int64
	ChatID int64
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d", k.UserID, k.ChatID)
}

// Session is the persisted snapshot of one conversation.
type Session struct {
	State     State             `json:"state"`
	Data      map[string]string `json:"data"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Clone returns a deep copy so callers never share the data map with the store.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := &Session{State: s.State, UpdatedAt: s.UpdatedAt, Data: make(map[string]string, len(s.Data))}
	for k, v := range s.Data {
		out.Data[k] = v
	}
	return out
}

// Store persists sessions. Load reports ok=false for a missing or expired session.
type Store interface {
	Load(ctx context.Context, key Key) (*Session, bool, error)
	Save(ctx context.Context, key Key, s *Session) error
	Delete(ctx context.Context, key Key) error
}
