package storage

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sahilm/fuzzy"

	"parley/model"
)

const previewLength = 100

// SessionMessageMatch is one search hit. MessageIndex is -1 when the
// session name matched rather than a message.
type SessionMessageMatch struct {
	SessionID    string
	SessionName  string
	MessageIndex int
	Sender       model.Sender
	Preview      string
	Timestamp    time.Time
	Score        int
}

type SearchIndex struct {
	storage *SessionStorage
}

func NewSearchIndex(storage *SessionStorage) *SearchIndex {
	return &SearchIndex{storage: storage}
}

type sessionNames []*Session

func (s sessionNames) String(i int) string { return strings.ToLower(s[i].Name) }
func (s sessionNames) Len() int            { return len(s) }

// Search finds sessions whose name fuzzily matches query, best first,
// followed by messages that contain query, newest session first.
func (si *SearchIndex) Search(query string) ([]SessionMessageMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []SessionMessageMatch{}, nil
	}

	sessions, err := si.storage.all()
	if err != nil {
		return nil, err
	}

	var matches []SessionMessageMatch
	for _, m := range fuzzy.FindFrom(strings.ToLower(query), sessionNames(sessions)) {
		session := sessions[m.Index]
		matches = append(matches, SessionMessageMatch{
			SessionID:    session.ID,
			SessionName:  session.Name,
			MessageIndex: -1,
			Preview:      session.Name,
			Timestamp:    session.UpdatedAt,
			Score:        m.Score,
		})
	}

	for _, session := range sessions {
		for _, hit := range SearchMessages(session.Messages, query) {
			hit.SessionID = session.ID
			hit.SessionName = session.Name
			matches = append(matches, hit)
		}
	}
	return matches, nil
}

// SearchMessages returns the dialogue messages containing query, case
// insensitively, most occurrences first.
func SearchMessages(messages []model.Message, query string) []SessionMessageMatch {
	if query == "" {
		return nil
	}

	queryLower := strings.ToLower(query)
	var matches []SessionMessageMatch

	for i, msg := range messages {
		if msg.Sender == model.SenderSystem || msg.Intermediate {
			continue
		}

		count := strings.Count(strings.ToLower(msg.Text), queryLower)
		if count == 0 {
			continue
		}
		matches = append(matches, SessionMessageMatch{
			MessageIndex: i,
			Sender:       msg.Sender,
			Preview:      preview(msg.Text),
			Timestamp:    msg.CreatedAt,
			Score:        count,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= previewLength {
		return text
	}
	return string([]rune(text)[:previewLength]) + "..."
}
