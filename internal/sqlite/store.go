// Package sqlite provides a SQLite-backed implementation of the discovery
// gateway ports.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/blackmichael/discovery/internal/domain"
	"github.com/blackmichael/discovery/internal/sqlite/migrations"
	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists listings, like-edges, rooms and messages in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// Open opens the database at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateListing inserts l. An empty ID is replaced with a new UUID and
// zero timestamps are set to now; both are written back into l.
func (s *Store) CreateListing(ctx context.Context, l *domain.Listing) error {
	if strings.TrimSpace(l.OwnerID) == "" {
		return fmt.Errorf("owner id is required")
	}
	if strings.TrimSpace(l.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Status == "" {
		l.Status = domain.ListingStatusActive
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now().UTC()
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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO listings (id, owner_id, name, category, description, address, phone, photos, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.OwnerID, l.Name, l.Category, l.Description,
		string(address), l.Phone, string(photos), string(l.Status),
		toMillis(l.CreatedAt), toMillis(l.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert listing %s: %w", l.ID, err)
	}
	return nil
}

// ListListings returns every listing, newest first.
func (s *Store) ListListings(ctx context.Context) ([]domain.Listing, error) {
	rows, err := s.db.QueryContext(ctx, `
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
			l                  domain.Listing
			address, photos    string
			status             string
			createdAt, updated int64
		)
		if err := rows.Scan(&l.ID, &l.OwnerID, &l.Name, &l.Category, &l.Description,
			&address, &l.Phone, &photos, &status, &createdAt, &updated); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		if err := json.Unmarshal([]byte(address), &l.Address); err != nil {
			return nil, fmt.Errorf("decode address of %s: %w", l.ID, err)
		}
		if err := json.Unmarshal([]byte(photos), &l.Photos); err != nil {
			return nil, fmt.Errorf("decode photos of %s: %w", l.ID, err)
		}
		l.Status = domain.ListingStatus(status)
		l.CreatedAt = fromMillis(createdAt)
		l.UpdatedAt = fromMillis(updated)
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}
	return listings, nil
}

// ListLikes returns the like-edges created by viewerID.
func (s *Store) ListLikes(ctx context.Context, viewerID string) ([]domain.LikeEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, listing_id, created_at
		FROM likes
		WHERE user_id = ?
		ORDER BY created_at DESC`, viewerID)
	if err != nil {
		return nil, fmt.Errorf("query likes for %s: %w", viewerID, err)
	}
	defer rows.Close()

	var edges []domain.LikeEdge
	for rows.Next() {
		var (
			e         domain.LikeEdge
			createdAt int64
		)
		if err := rows.Scan(&e.ViewerID, &e.ListingID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan like: %w", err)
		}
		e.CreatedAt = fromMillis(createdAt)
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate likes: %w", err)
	}
	return edges, nil
}

// InsertLike creates the (viewerID, listingID) edge.
func (s *Store) InsertLike(ctx context.Context, viewerID, listingID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO likes (user_id, listing_id, created_at) VALUES (?, ?, ?)`,
		viewerID, listingID, toMillis(s.now()),
	)
	if err == nil {
		return nil
	}
	switch constraintOf(err) {
	case constraintUnique:
		return fmt.Errorf("insert like %s: %w", listingID, domain.ErrDuplicateLike)
	case constraintForeignKey:
		return fmt.Errorf("insert like %s: %w", listingID, domain.ErrListingNotFound)
	}
	return fmt.Errorf("insert like %s: %w", listingID, err)
}

// DeleteLike removes the (viewerID, listingID) edge if present.
func (s *Store) DeleteLike(ctx context.Context, viewerID, listingID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM likes WHERE user_id = ? AND listing_id = ?`, viewerID, listingID,
	); err != nil {
		return fmt.Errorf("delete like %s: %w", listingID, err)
	}
	return nil
}

// CreateRoom inserts r, assigning an ID and creation time when unset.
func (s *Store) CreateRoom(ctx context.Context, r *domain.Room) error {
	if r.MemberA == "" || r.MemberB == "" {
		return fmt.Errorf("both room members are required")
	}
	if r.MemberA == r.MemberB {
		return fmt.Errorf("room members must differ")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (id, member_a, member_b, listing_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.MemberA, r.MemberB, r.ListingID, toMillis(r.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

// ListRooms returns the rooms accountID belongs to, newest first.
func (s *Store) ListRooms(ctx context.Context, accountID string) ([]domain.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, member_a, member_b, listing_id, created_at
		FROM rooms
		WHERE member_a = ? OR member_b = ?
		ORDER BY created_at DESC, id`, accountID, accountID)
	if err != nil {
		return nil, fmt.Errorf("query rooms for %s: %w", accountID, err)
	}
	defer rows.Close()

	var rooms []domain.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	return rooms, nil
}

// GetRoom returns one room.
func (s *Store) GetRoom(ctx context.Context, roomID string) (domain.Room, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, member_a, member_b, listing_id, created_at
		FROM rooms
		WHERE id = ?`, roomID)
	r, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, fmt.Errorf("get room %s: %w", roomID, domain.ErrRoomNotFound)
	}
	return r, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (domain.Room, error) {
	var (
		r         domain.Room
		createdAt int64
	)
	if err := row.Scan(&r.ID, &r.MemberA, &r.MemberB, &r.ListingID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Room{}, err
		}
		return domain.Room{}, fmt.Errorf("scan room: %w", err)
	}
	r.CreatedAt = fromMillis(createdAt)
	return r, nil
}

// ListMessages returns the room's messages oldest first.
func (s *Store) ListMessages(ctx context.Context, roomID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, sender_id, content, created_at
		FROM messages
		WHERE room_id = ?
		ORDER BY created_at ASC, rowid ASC`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query messages for %s: %w", roomID, err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var (
			m         domain.Message
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = fromMillis(createdAt)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// InsertMessage appends msg to its room, assigning ID and CreatedAt.
func (s *Store) InsertMessage(ctx context.Context, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = s.now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, room_id, sender_id, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.RoomID, msg.SenderID, msg.Content, toMillis(msg.CreatedAt),
	)
	if err == nil {
		return nil
	}
	if constraintOf(err) == constraintForeignKey {
		return fmt.Errorf("insert message: %w", domain.ErrRoomNotFound)
	}
	return fmt.Errorf("insert message: %w", err)
}

type constraint int

const (
	constraintNone constraint = iota
	constraintUnique
	constraintForeignKey
)

// constraintOf classifies SQLite constraint violations by extended result
// code, falling back to the error text.
func constraintOf(err error) constraint {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return constraintUnique
		case sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return constraintForeignKey
		}
	}
	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "unique constraint failed"):
		return constraintUnique
	case strings.Contains(message, "foreign key constraint failed"):
		return constraintForeignKey
	}
	return constraintNone
}

var (
	_ domain.ListingRepository = (*Store)(nil)
	_ domain.LikeRepository    = (*Store)(nil)
	_ domain.RoomRepository    = (*Store)(nil)
	_ domain.MessageRepository = (*Store)(nil)
)
