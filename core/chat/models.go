package chat

import (
	"time"
)

const displayTimeLayout = "15:04"

// Conversation is a two-party thread. Participants are stored as the ordered pair
// (UserLow < UserHigh) so a pair maps to a single row whatever the order of the ids.
type Conversation struct {
	ID        int       `json:"id" db:"id"`
	UserLow   int       `json:"-" db:"user_low"`
	UserHigh  int       `json:"-" db:"user_high"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"` // UTC
}

// normalizePair orders a pair of user ids.
func normalizePair(a, b int) (low, high int) {
	if a < b {
		return a, b
	}
	return b, a
}

func (c Conversation) Participants() []int {
	return []int{c.UserLow, c.UserHigh}
}

func (c Conversation) HasParticipant(userID int) bool {
	return userID == c.UserLow || userID == c.UserHigh
}

// Other returns the participant that is not userID.
func (c Conversation) Other(userID int) int {
	if userID == c.UserLow {
		return c.UserHigh
	}
	return c.UserLow
}

type Message struct {
	ID             int       `json:"id" db:"id"`
	ConversationID int       `json:"conversation_id" db:"conversation_id"`
	SenderID       int       `json:"sender_id" db:"sender_id"`
	Text           string    `json:"message" db:"text"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"` // UTC
}

// DisplayTime formats the creation time as HH:MM in server local time.
func (m Message) DisplayTime() string {
	return m.CreatedAt.In(time.Local).Format(displayTimeLayout)
}

type (
	// Participant is the display info of the other side of a conversation.
	Participant struct {
		ID          int    `json:"id"`
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
		AvatarURL   string `json:"avatar_url"`
	}

	// Summary is one row of a user's conversation list.
	Summary struct {
		ID              int         `json:"id"`
		Other           Participant `json:"other"`
		LastMessage     string      `json:"last_message"`
		LastMessageTime string      `json:"last_message_time"`
		UpdatedAt       time.Time   `json:"updated_at"`
	}
)
