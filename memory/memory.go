// Package memory decides which exchanges are worth remembering and stores
// them for retrieval in later turns.
package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Importance ranks a memory for retention.
type Importance int

const (
	ImportanceNone Importance = iota
	ImportanceLow
	ImportanceNormal
	ImportanceHigh
)

func (i Importance) String() string {
	switch i {
	case ImportanceLow:
		return "low"
	case ImportanceNormal:
		return "normal"
	case ImportanceHigh:
		return "high"
	default:
		return "none"
	}
}

// ParseImportance converts a name to an Importance. Unknown names are an error.
func ParseImportance(s string) (Importance, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return ImportanceNone, nil
	case "low":
		return ImportanceLow, nil
	case "normal", "medium":
		return ImportanceNormal, nil
	case "high", "critical":
		return ImportanceHigh, nil
	}
	return ImportanceNone, fmt.Errorf("unknown importance %q", s)
}

func (i Importance) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *Importance) UnmarshalText(text []byte) error {
	v, err := ParseImportance(string(text))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// Memory types.
const (
	TypeConversation = "conversation"
	TypeFact         = "fact"
	TypePreference   = "preference"
)

// Memory is a stored fact. Memories are never mutated; newer records
// supersede older ones.
type Memory struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Type       string     `json:"type,omitempty"`
	Importance Importance `json:"importance"`
	Volatile   bool       `json:"volatile"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
}

// New creates a memory stamped at now. A positive ttl makes it volatile with
// ExpiresAt = now + ttl; otherwise it is permanent.
func New(text string, importance Importance, ttl time.Duration, now time.Time) Memory {
	m := Memory{
		ID:         uuid.New().String(),
		Text:       text,
		Type:       TypeConversation,
		Importance: importance,
		CreatedAt:  now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		m.Volatile = true
		m.ExpiresAt = &expires
	}
	return m
}

// Expired reports whether a volatile memory is past its expiry at now.
// A memory is still valid at the exact expiry instant.
func (m Memory) Expired(now time.Time) bool {
	if !m.Volatile || m.ExpiresAt == nil {
		return false
	}
	return now.After(*m.ExpiresAt)
}

// Partition splits mems into valid and expired, keeping order.
func Partition(mems []Memory, now time.Time) (valid, expired []Memory) {
	for _, m := range mems {
		if m.Expired(now) {
			expired = append(expired, m)
		} else {
			valid = append(valid, m)
		}
	}
	return valid, expired
}

// FormatContext renders memories as a system prompt section.
func FormatContext(mems []Memory) string {
	if len(mems) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant memories from earlier conversations:\n")
	for _, m := range mems {
		b.WriteString("- ")
		b.WriteString(strings.ReplaceAll(strings.TrimSpace(m.Text), "\n", " "))
		if m.Importance == ImportanceHigh {
			b.WriteString(" (important)")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
