package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/blackmichael/discovery/internal/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// SQLSTATE codes the repository translates into domain errors.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

//go:embed schema.sql
var schema string

// Repository implements the discovery gateway ports using PostgreSQL.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository connects to PostgreSQL at the given URL, verifies the
// connection, and returns a new Repository. The caller should call Close
// when the repository is no longer needed.
func NewRepository(databaseURL string) (*Repository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewRepositoryFromDB(db), nil
}

// NewRepositoryFromDB wraps an already opened database handle.
func NewRepositoryFromDB(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Migrate creates the tables if they do not exist yet.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// CreateListing inserts a listing, assigning an ID and timestamps when
// they are unset.
func (r *Repository) CreateListing(ctx context.Context, l *domain.Listing) error {
	if l.OwnerID == "" || l.Name == "" {
		return fmt.Errorf("owner id and name are required")
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Status == "" {
		l.Status = domain.ListingStatusActive
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = r.now().UTC()
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = l.CreatedAt
	}

	address, err := json.Marshal(l.Address)
	if err != nil {
		return fmt.Errorf("marshal address: %w", err)
	}
	photos, err := json.Marshal(l.Photos)
	if err != nil {
		return fmt.Errorf("marshal photos: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO listings (id, owner_id, name, category, description, address, phone, photos, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		l.ID, l.OwnerID, l.Name, l.Category, l.Description,
		address, l.Phone, photos, string(l.Status),
		l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert listing %s: %w", l.ID, err)
	}
	return nil
}

// ListListings returns every listing, newest first.
func (r *Repository) ListListings(ctx context.Context) ([]domain.Listing, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, name, category, description, address, phone, photos, status, created_at, updated_at
		FROM listings
		ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	var listings []domain.Listing
	for rows.Next() {
		var (
			l               domain.Listing
			address, photos []byte
			status          string
		)
		err := rows.Scan(
			&l.ID,
			&l.OwnerID,
			&l.Name,
			&l.Category,
			&l.Description,
			&address,
			&l.Phone,
			&photos,
			&status,
			&l.CreatedAt,
			&l.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		if len(address) > 0 {
			if err := json.Unmarshal(address, &l.Address); err != nil {
				return nil, fmt.Errorf("decode address of %s: %w", l.ID, err)
			}
		}
		if len(photos) > 0 {
			if err := json.Unmarshal(photos, &l.Photos); err != nil {
				return nil, fmt.Errorf("decode photos of %s: %w", l.ID, err)
			}
		}
		l.Status = domain.ListingStatus(status)
		listings = append(listings, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}
	return listings, nil
}

// ListLikes returns the like-edges created by viewerID.
func (r *Repository) ListLikes(ctx context.Context, viewerID string) ([]domain.LikeEdge, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, listing_id, created_at
		FROM likes
		WHERE user_id = $1
		ORDER BY created_at DESC`, viewerID)
	if err != nil {
		return nil, fmt.Errorf("query likes (user=%s): %w", viewerID, err)
	}
	defer rows.Close()

	var edges []domain.LikeEdge
	for rows.Next() {
		var e domain.LikeEdge
		if err := rows.Scan(&e.ViewerID, &e.ListingID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan like: %w", err)
		}
		edges = append(edges, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate likes: %w", err)
	}
	return edges, nil
}

// InsertLike creates the (viewerID, listingID) edge.
func (r *Repository) InsertLike(ctx context.Context, viewerID, listingID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO likes (user_id, listing_id, created_at) VALUES ($1, $2, $3)`,
		viewerID, listingID, r.now().UTC(),
	)
	if err == nil {
		return nil
	}
	switch sqlState(err) {
	case uniqueViolation:
		return fmt.Errorf("insert like %s: %w", listingID, domain.ErrDuplicateLike)
	case foreignKeyViolation:
		return fmt.Errorf("insert like %s: %w", listingID, domain.ErrListingNotFound)
	}
	return fmt.Errorf("insert like %s: %w", listingID, err)
}

// DeleteLike removes the (viewerID, listingID) edge if present.
func (r *Repository) DeleteLike(ctx context.Context, viewerID, listingID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM likes WHERE user_id = $1 AND listing_id = $2`, viewerID, listingID)
	if err != nil {
		return fmt.Errorf("delete like %s: %w", listingID, err)
	}
	return nil
}

// CreateRoom inserts a room between two accounts.
func (r *Repository) CreateRoom(ctx context.Context, room *domain.Room) error {
	if room.MemberA == "" || room.MemberB == "" || room.MemberA == room.MemberB {
		return fmt.Errorf("room needs two distinct members")
	}
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = r.now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rooms (id, member_a, member_b, listing_id, created_at) VALUES ($1, $2, $3, $4, $5)`,
		room.ID, room.MemberA, room.MemberB, room.ListingID, room.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

// ListRooms returns the rooms accountID belongs to, newest first.
func (r *Repository) ListRooms(ctx context.Context, accountID string) ([]domain.Room, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, member_a, member_b, listing_id, created_at
		FROM rooms
		WHERE member_a = $1 OR member_b = $1
		ORDER BY created_at DESC, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query rooms (account=%s): %w", accountID, err)
	}
	defer rows.Close()

	var rooms []domain.Room
	for rows.Next() {
		var room domain.Room
		if err := rows.Scan(&room.ID, &room.MemberA, &room.MemberB, &room.ListingID, &room.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	return rooms, nil
}

// GetRoom returns one room.
func (r *Repository) GetRoom(ctx context.Context, roomID string) (domain.Room, error) {
	var room domain.Room
	err := r.db.QueryRowContext(ctx, `
		SELECT id, member_a, member_b, listing_id, created_at
		FROM rooms
		WHERE id = $1`, roomID,
	).Scan(&room.ID, &room.MemberA, &room.MemberB, &room.ListingID, &room.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, fmt.Errorf("get room %s: %w", roomID, domain.ErrRoomNotFound)
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("get room %s: %w", roomID, err)
	}
	return room, nil
}

// ListMessages returns the room's messages oldest first.
func (r *Repository) ListMessages(ctx context.Context, roomID string) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, room_id, sender_id, content, created_at
		FROM messages
		WHERE room_id = $1
		ORDER BY created_at ASC, id ASC`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query messages (room=%s): %w", roomID, err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// InsertMessage appends msg to its room. The creation time is assigned by
// the database and written back into msg.
func (r *Repository) InsertMessage(ctx context.Context, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO messages (id, room_id, sender_id, content)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		msg.ID, msg.RoomID, msg.SenderID, msg.Content,
	).Scan(&msg.CreatedAt)
	if err == nil {
		return nil
	}
	if sqlState(err) == foreignKeyViolation {
		return fmt.Errorf("insert message: %w", domain.ErrRoomNotFound)
	}
	return fmt.Errorf("insert message: %w", err)
}

func sqlState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

var (
	_ domain.ListingRepository = (*Repository)(nil)
	_ domain.LikeRepository    = (*Repository)(nil)
	_ domain.RoomRepository    = (*Repository)(nil)
	_ domain.MessageRepository = (*Repository)(nil)
)
