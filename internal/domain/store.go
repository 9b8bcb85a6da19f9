package domain

import (
	"context"
	"time"
)

// Profile is what we know about a sender. All fields are optional context;
// a missing profile is a normal state, not an error.
type Profile struct {
	UserID        string    `json:"user_id"`
	Name          string    `json:"name,omitempty"`
	HomeCity      string    `json:"home_city,omitempty"`
	FavoriteTeams []string  `json:"favorite_teams,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// HistoryMessage is a single prior turn in a thread.
type HistoryMessage struct {
	Role   string    `json:"role"` // user | assistant
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// RecordStore persists profiles and per-thread conversation history.
// Every call may fail; callers must treat failure as "context unavailable",
// never as fatal.
type RecordStore interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	GetHistory(ctx context.Context, threadID string, limit int) ([]HistoryMessage, error)
	AppendMessage(ctx context.Context, threadID, role, text string, meta map[string]string) error
	Close() error
}
