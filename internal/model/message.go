package model

import "time"

// Sender identifies who wrote a chat message. The backend denormalizes
// the display name onto every message so clients never need a second
// lookup to render it.
type Sender struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message is a single chat entry, immutable once received.
//
// Messages are created either by the one-shot history fetch (an
// already-ordered batch) or by a single realtime push. The backend owns
// IDs, ordering, and uniqueness; the client never reorders or
// deduplicates.
type Message struct {
	ID        string    `json:"_id"`
	CourseID  string    `json:"courseId"`
	Sender    Sender    `json:"sender"`
	Body      string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
