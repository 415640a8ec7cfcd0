package domain

import "time"

// Message is a single chat message posted to a room.
type Message struct {
	ID       string `json:"id"`
	RoomID   string `json:"room_id"`
	SenderID string `json:"sender_id"`
	Content  string `json:"content"`

	// CreatedAt is assigned by the store on insert.
	CreatedAt time.Time `json:"created_at"`
}

// Room is a direct-message channel between two matched accounts.
type Room struct {
	ID      string `json:"id"`
	MemberA string `json:"member_a"`
	MemberB string `json:"member_b"`

	// ListingID is the listing the connection started from, if any.
	ListingID string    `json:"listing_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HasMember reports whether accountID is one of the room's two members.
func (r Room) HasMember(accountID string) bool {
	return accountID != "" && (r.MemberA == accountID || r.MemberB == accountID)
}

// Peer returns the member of the room that is not accountID.
func (r Room) Peer(accountID string) string {
	if r.MemberA == accountID {
		return r.MemberB
	}
	return r.MemberA
}
