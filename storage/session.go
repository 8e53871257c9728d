// Package storage keeps chat sessions as JSON files under
// <data_dir>/sessions, one file per session.
package storage

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"parley/model"
)

const nameLength = 30

// ProviderSnapshot records which backend a session was last used with.
type ProviderSnapshot struct {
	ID    string `json:"id"`
	Model string `json:"model"`
}

// Session is one conversation and everything needed to resume it.
type Session struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Messages     []model.Message   `json:"messages"`
	SystemPrompt string            `json:"system_prompt,omitempty"`
	Provider     ProviderSnapshot  `json:"provider"`
	Preferences  map[string]string `json:"preferences,omitempty"`
}

// SessionMetadata is what listing needs without the messages.
type SessionMetadata struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	MessageCount int              `json:"message_count"`
	Provider     ProviderSnapshot `json:"provider"`
}

func NewSession(provider ProviderSnapshot, now time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Provider:  provider,
	}
}

// Append adds m and moves UpdatedAt to its timestamp.
func (s *Session) Append(m model.Message) {
	s.Messages = append(s.Messages, m)
	s.UpdatedAt = m.CreatedAt
}

func (s *Session) Metadata() SessionMetadata {
	return SessionMetadata{
		ID:           s.ID,
		Name:         s.Name,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		MessageCount: len(s.Messages),
		Provider:     s.Provider,
	}
}

// defaultName titles a session after its first user message, or after its
// creation time when the user has not spoken yet.
func (s *Session) defaultName() string {
	for _, m := range s.Messages {
		if m.Sender != model.SenderUser {
			continue
		}
		if name := strings.Join(strings.Fields(m.Text), " "); name != "" {
			if utf8.RuneCountInString(name) > nameLength {
				name = string([]rune(name)[:nameLength]) + "..."
			}
			return name
		}
	}
	return fmt.Sprintf("Session %s", s.CreatedAt.Local().Format("Jan 2, 3:04 PM"))
}
