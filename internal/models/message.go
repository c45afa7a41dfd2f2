package models

// Message represents a single message in a squad channel.
// Immutable once appended. Seq is the insertion sequence assigned by the
// store; (Timestamp, Seq) is the authoritative ordering.
type Message struct {
	ID         string     `json:"id"` // ULID
	SquadID    string     `json:"squad_id"`
	SenderID   string     `json:"sender_id"` // member ID or "orchestrator"
	SenderName string     `json:"sender_name"`
	SenderKind SenderKind `json:"sender_kind"`
	Content    string     `json:"content"`
	Timestamp  int64      `json:"ts"`  // Unix ms
	Seq        int64      `json:"seq"` // insertion sequence, tie-break for equal timestamps
	ReplyTo    string     `json:"reply_to,omitempty"`
}
