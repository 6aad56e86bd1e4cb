package domain

import "time"

// Message is a single chat line. Sequence order in Chat.Messages is
// authoritative; timestamps may coincide.
type Message struct {
	ID   string    `json:"id"`
	From string    `json:"from"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Chat is the unique thread for one product and one buyer/seller pair.
type Chat struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"productId"`
	Participants []string  `json:"participants"` // buyer, seller
	Messages     []Message `json:"messages"`
}

// Counterpart returns the participant that is not userID, or fallback when
// the chat has no other participant.
func (c Chat) Counterpart(userID, fallback string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return fallback
}
