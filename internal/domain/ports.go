package domain

import "context"

// ListingRepository defines read access to discovery candidates.
type ListingRepository interface {
	// ListListings returns every listing. No pagination is applied.
	ListListings(ctx context.Context) ([]Listing, error)
}

// LikeRepository defines persistence operations for like-edges.
type LikeRepository interface {
	// ListLikes returns all like-edges created by viewerID.
	ListLikes(ctx context.Context, viewerID string) ([]LikeEdge, error)

	// InsertLike creates the (viewerID, listingID) edge. It returns an error
	// wrapping ErrDuplicateLike if the edge already exists and
	// ErrListingNotFound if the listing does not exist.
	InsertLike(ctx context.Context, viewerID, listingID string) error

	// DeleteLike removes the edge matching (viewerID, listingID) exactly.
	// Deleting a missing edge is not an error.
	DeleteLike(ctx context.Context, viewerID, listingID string) error
}

// MessageRepository defines persistence operations for chat messages.
type MessageRepository interface {
	// ListMessages returns the room's messages ordered by creation time
	// ascending.
	ListMessages(ctx context.Context, roomID string) ([]Message, error)

	// InsertMessage appends msg to its room. The store assigns ID (when
	// empty) and CreatedAt, and writes them back into msg.
	InsertMessage(ctx context.Context, msg *Message) error
}

// RoomRepository defines read access to the viewer's connections.
type RoomRepository interface {
	// ListRooms returns the rooms accountID is a member of, newest first.
	ListRooms(ctx context.Context, accountID string) ([]Room, error)

	// GetRoom returns the room or an error wrapping ErrRoomNotFound.
	GetRoom(ctx context.Context, roomID string) (Room, error)

	// CreateRoom opens a room between two accounts. The store assigns ID
	// (when empty) and CreatedAt.
	CreateRoom(ctx context.Context, room *Room) error
}

// Subscription is a live realtime subscription.
type Subscription interface {
	// Unsubscribe stops delivery. Calling it more than once is a no-op.
	Unsubscribe() error
}

// RealtimeSubscriber delivers insert events for new messages in a room.
type RealtimeSubscriber interface {
	// Subscribe calls deliver for every message inserted into roomID until
	// the returned Subscription is cancelled. deliver may be called from
	// another goroutine.
	Subscribe(ctx context.Context, roomID string, deliver func(Message)) (Subscription, error)
}
