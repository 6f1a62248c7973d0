// Package session holds the application sessions that connections get bound
// to, and the stores that keep them across reconnects and restarts.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Manager resolves an external token into a session. A missing session is
// reported with ok == false, not with an error.
type Manager[S any] interface {
	GetSessionByToken(ctx context.Context, token string) (S, bool, error)
}

// Data is the application payload carried by a session.
type Data struct {
	UserID     string            `json:"user_id" yaml:"user_id"`
	Role       string            `json:"role,omitempty" yaml:"role,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// Session is compared by pointer identity once it is bound to a connection,
// so a live session must only ever be represented by one *Session.
type Session struct {
	token     string
	Data      Data
	CreatedAt time.Time

	mu           sync.Mutex
	lastActivity time.Time
}

func New(token string, data Data, createdAt time.Time) *Session {
	return &Session{
		token:        token,
		Data:         data,
		CreatedAt:    createdAt,
		lastActivity: createdAt,
	}
}

func (s *Session) Token() string {
	if s == nil {
		return ""
	}
	return s.token
}

// Describe is used in log lines. Only a token prefix is printed.
func (s *Session) Describe() string {
	if s == nil {
		return ""
	}
	tok := s.token
	if len(tok) > 8 {
		tok = tok[:8]
	}
	if s.Data.Role == "" {
		return fmt.Sprintf("user=%s token=%s", s.Data.UserID, tok)
	}
	return fmt.Sprintf("user=%s role=%s token=%s", s.Data.UserID, s.Data.Role, tok)
}

func (s *Session) Touch(now time.Time) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if now.After(s.lastActivity) {
		s.lastActivity = now
	}
	s.mu.Unlock()
}

func (s *Session) LastActivity() time.Time {
	if s == nil {
		return time.Time{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Record is the persisted form of a session.
type Record struct {
	Token     string    `json:"token"`
	Data      Data      `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Session) Record() Record {
	return Record{Token: s.token, Data: s.Data, CreatedAt: s.CreatedAt}
}

func FromRecord(r Record) *Session {
	return New(r.Token, r.Data, r.CreatedAt)
}
