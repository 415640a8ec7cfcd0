package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/blackmichael/discovery/internal/domain"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepositoryFromDB(db), mock
}

func TestInsertLike(t *testing.T) {
	repo, mock := newMockRepository(t)
	ctx := context.Background()
	insert := regexp.QuoteMeta("INSERT INTO likes (user_id, listing_id, created_at) VALUES ($1, $2, $3)")

	// 1. Success
	mock.ExpectExec(insert).
		WithArgs("viewer", "L1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.InsertLike(ctx, "viewer", "L1"))

	// 2. Duplicate edge
	mock.ExpectExec(insert).
		WithArgs("viewer", "L1", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: uniqueViolation})
	assert.ErrorIs(t, repo.InsertLike(ctx, "viewer", "L1"), domain.ErrDuplicateLike)

	// 3. Listing removed
	mock.ExpectExec(insert).
		WithArgs("viewer", "gone", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: foreignKeyViolation})
	assert.ErrorIs(t, repo.InsertLike(ctx, "viewer", "gone"), domain.ErrListingNotFound)

	// 4. Anything else passes through
	mock.ExpectExec(insert).
		WithArgs("viewer", "L2", sqlmock.AnyArg()).
		WillReturnError(sqlmock.ErrCancelled)
	err := repo.InsertLike(ctx, "viewer", "L2")
	assert.ErrorIs(t, err, sqlmock.ErrCancelled)
	assert.NotErrorIs(t, err, domain.ErrDuplicateLike)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteLike(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM likes WHERE user_id = $1 AND listing_id = $2")).
		WithArgs("viewer", "L1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.DeleteLike(context.Background(), "viewer", "L1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListLikes(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"user_id", "listing_id", "created_at"}).
		AddRow("viewer", "L1", now).
		AddRow("viewer", "L2", now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id, listing_id, created_at")).
		WithArgs("viewer").
		WillReturnRows(rows)

	edges, err := repo.ListLikes(context.Background(), "viewer")
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, "L2", edges[1].ListingID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListListingsDecodesJSONColumns(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "owner_id", "name", "category", "description", "address", "phone", "photos", "status", "created_at", "updated_at",
	}).AddRow("L1", "owner", "Bakery", "food", "bread", []byte(`{"city":"Springfield"}`), "555", []byte(`["a.jpg"]`), "active", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM listings")).WillReturnRows(rows)

	listings, err := repo.ListListings(context.Background())
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "Springfield", listings[0].Address.City)
	assert.Equal(t, []string{"a.jpg"}, listings[0].Photos)
	assert.Equal(t, domain.ListingStatusActive, listings[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateListingAssignsDefaults(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO listings")).
		WithArgs(sqlmock.AnyArg(), "owner", "Bakery", "", "", sqlmock.AnyArg(), "", sqlmock.AnyArg(), "active", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	l := domain.Listing{OwnerID: "owner", Name: "Bakery"}
	require.NoError(t, repo.CreateListing(context.Background(), &l))
	assert.NotEmpty(t, l.ID)
	assert.False(t, l.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRoomNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM rooms")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id", "member_a", "member_b", "listing_id", "created_at"}))

	_, err := repo.GetRoom(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMessage(t *testing.T) {
	repo, mock := newMockRepository(t)
	created := time.Date(2026, time.June, 1, 8, 0, 0, 0, time.UTC)
	insert := regexp.QuoteMeta("INSERT INTO messages (id, room_id, sender_id, content)")

	mock.ExpectQuery(insert).
		WithArgs(sqlmock.AnyArg(), "room", "alice", "hi").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	msg := domain.Message{RoomID: "room", SenderID: "alice", Content: "hi"}
	require.NoError(t, repo.InsertMessage(context.Background(), &msg))
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, created, msg.CreatedAt)

	mock.ExpectQuery(insert).
		WithArgs(sqlmock.AnyArg(), "gone", "alice", "hi").
		WillReturnError(&pq.Error{Code: foreignKeyViolation})

	err := repo.InsertMessage(context.Background(), &domain.Message{RoomID: "gone", SenderID: "alice", Content: "hi"})
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS listings")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
