package state

import "time"

// State identifies a step of the conversational script.
type State string

const (
	// StateMenu is the initial state: the user picks dialog or diary.
	StateMenu State = "menu"
	// StateDialog forwards free text to the completion service.
	StateDialog State = "dialog"
	// StateFeedback waits for the user to rate the suggested technique.
	StateFeedback State = "feedback"
)

// Tier is a cosmetic subscription label with no gated behaviour.
type Tier string

const (
	TierBasic      Tier = "basic"
	TierSubscribed Tier = "subscribed"
)

// Role tags a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single exchanged message kept in session history.
type Message struct {
	ID   string
	Role Role
	Text string
	At   time.Time
}

// Session stores conversation state for one Telegram user.
type Session struct {
	UserID    int64
	State     State
	TurnCount int
	History   []Message
	Tier      Tier

	CreatedAt    time.Time
	LastActivity time.Time
}

// NewSession returns a fresh session in the menu state.
func NewSession(userID int64, now time.Time) Session {
	return Session{
		UserID:       userID,
		State:        StateMenu,
		Tier:         TierBasic,
		CreatedAt:    now,
		LastActivity: now,
	}
}

// Clone returns a deep copy so callers can mutate history freely.
func (s Session) Clone() Session {
	if s.History != nil {
		h := make([]Message, len(s.History))
		copy(h, s.History)
		s.History = h
	}
	return s
}

// Store orchestrates user sessions.
type Store interface {
	// GetOrCreate returns a copy of the user's session, creating a fresh
	// menu session when none exists.
	GetOrCreate(userID int64) Session
	// Put replaces the stored session.
	Put(s Session)
	// Lock serializes work for a single user. The returned func releases it.
	Lock(userID int64) func()

	Len() int
	Snapshot() []Session
	// SweepIdle removes sessions whose last activity is older than ttl.
	SweepIdle(ttl time.Duration) int
}
