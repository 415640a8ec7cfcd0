// Package backend is a client for the hosted back-end: password-grant auth
// plus a PostgREST-style REST API over the listings, likes, rooms and
// messages tables.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blackmichael/discovery/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "github.com/blackmichael/discovery/internal/backend"

// SQLSTATE codes the REST layer passes through in error bodies.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// APIError is an error response from the back-end.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error (status %d, code %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.Status, e.Message)
}

// Client is a minimal client for the hosted back-end.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	// populated after Login or WithAccessToken
	accessToken string
	userID      string
}

// NewClient creates a client for the project at baseURL using the
// project's public API key.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithAccessToken returns a copy of c that acts as the user owning token.
func (c *Client) WithAccessToken(token string) *Client {
	clone := *c
	clone.accessToken = token
	clone.userID = ""
	return &clone
}

// Login authenticates with email and password and stores the session
// token.
func (c *Client) Login(ctx context.Context, email, password string) error {
	body := map[string]string{
		"email":    email,
		"password": password,
	}

	var resp tokenResponse
	q := url.Values{"grant_type": {"password"}}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token", q, body, "", &resp); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	c.accessToken = resp.AccessToken
	c.userID = resp.User.ID
	return nil
}

// UserID returns the authenticated user's id. Only valid after Login.
func (c *Client) UserID() string {
	return c.userID
}

// AccessToken returns the current session token, if any.
func (c *Client) AccessToken() string {
	return c.accessToken
}

// ListListings returns every listing.
func (c *Client) ListListings(ctx context.Context) ([]domain.Listing, error) {
	var listings []domain.Listing
	q := url.Values{"select": {"*"}, "order": {"created_at.desc"}}
	if err := c.do(ctx, http.MethodGet, "/rest/v1/listings", q, nil, "", &listings); err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	return listings, nil
}

// CreateListing inserts l and copies the stored row back into it.
func (c *Client) CreateListing(ctx context.Context, l *domain.Listing) error {
	if c.accessToken == "" {
		return fmt.Errorf("not authenticated: call Login first")
	}
	if l.OwnerID == "" {
		l.OwnerID = c.userID
	}

	var rows []domain.Listing
	if err := c.do(ctx, http.MethodPost, "/rest/v1/listings", nil, newListingRow(l), "return=representation", &rows); err != nil {
		return fmt.Errorf("create listing: %w", err)
	}
	if len(rows) > 0 {
		*l = rows[0]
	}
	return nil
}

// ListLikes returns the like-edges of viewerID.
func (c *Client) ListLikes(ctx context.Context, viewerID string) ([]domain.LikeEdge, error) {
	var edges []domain.LikeEdge
	q := url.Values{"select": {"*"}, "user_id": {"eq." + viewerID}}
	if err := c.do(ctx, http.MethodGet, "/rest/v1/likes", q, nil, "", &edges); err != nil {
		return nil, fmt.Errorf("list likes: %w", err)
	}
	return edges, nil
}

// InsertLike creates the (viewerID, listingID) edge.
func (c *Client) InsertLike(ctx context.Context, viewerID, listingID string) error {
	body := likeRow{ViewerID: viewerID, ListingID: listingID}
	err := c.do(ctx, http.MethodPost, "/rest/v1/likes", nil, body, "return=minimal", nil)
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("insert like %s: %w", listingID, domain.ErrDuplicateLike)
		case codeForeignKeyViolation:
			return fmt.Errorf("insert like %s: %w", listingID, domain.ErrListingNotFound)
		}
	}
	return fmt.Errorf("insert like %s: %w", listingID, err)
}

// DeleteLike removes the (viewerID, listingID) edge.
func (c *Client) DeleteLike(ctx context.Context, viewerID, listingID string) error {
	q := url.Values{"user_id": {"eq." + viewerID}, "listing_id": {"eq." + listingID}}
	if err := c.do(ctx, http.MethodDelete, "/rest/v1/likes", q, nil, "", nil); err != nil {
		return fmt.Errorf("delete like %s: %w", listingID, err)
	}
	return nil
}

// ListRooms returns the rooms accountID belongs to.
func (c *Client) ListRooms(ctx context.Context, accountID string) ([]domain.Room, error) {
	var rooms []domain.Room
	q := url.Values{
		"select": {"*"},
		"or":     {fmt.Sprintf("(member_a.eq.%s,member_b.eq.%s)", accountID, accountID)},
		"order":  {"created_at.desc"},
	}
	if err := c.do(ctx, http.MethodGet, "/rest/v1/rooms", q, nil, "", &rooms); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// GetRoom returns one room.
func (c *Client) GetRoom(ctx context.Context, roomID string) (domain.Room, error) {
	var rooms []domain.Room
	q := url.Values{"select": {"*"}, "id": {"eq." + roomID}}
	if err := c.do(ctx, http.MethodGet, "/rest/v1/rooms", q, nil, "", &rooms); err != nil {
		return domain.Room{}, fmt.Errorf("get room %s: %w", roomID, err)
	}
	if len(rooms) == 0 {
		return domain.Room{}, fmt.Errorf("get room %s: %w", roomID, domain.ErrRoomNotFound)
	}
	return rooms[0], nil
}

// CreateRoom inserts a room and copies the stored row back.
func (c *Client) CreateRoom(ctx context.Context, room *domain.Room) error {
	body := roomRow{MemberA: room.MemberA, MemberB: room.MemberB, ListingID: room.ListingID}
	var rows []domain.Room
	if err := c.do(ctx, http.MethodPost, "/rest/v1/rooms", nil, body, "return=representation", &rows); err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	if len(rows) > 0 {
		*room = rows[0]
	}
	return nil
}

// ListMessages returns the room's messages oldest first.
func (c *Client) ListMessages(ctx context.Context, roomID string) ([]domain.Message, error) {
	var messages []domain.Message
	q := url.Values{"select": {"*"}, "room_id": {"eq." + roomID}, "order": {"created_at.asc"}}
	if err := c.do(ctx, http.MethodGet, "/rest/v1/messages", q, nil, "", &messages); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// InsertMessage appends msg. The server assigns id and created_at.
func (c *Client) InsertMessage(ctx context.Context, msg *domain.Message) error {
	body := messageRow{RoomID: msg.RoomID, SenderID: msg.SenderID, Content: msg.Content}
	var rows []domain.Message
	err := c.do(ctx, http.MethodPost, "/rest/v1/messages", nil, body, "return=representation", &rows)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeForeignKeyViolation {
			return fmt.Errorf("insert message: %w", domain.ErrRoomNotFound)
		}
		return fmt.Errorf("insert message: %w", err)
	}
	if len(rows) > 0 {
		*msg = rows[0]
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, prefer string, result any) (err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, method+" "+path)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
	req.Header.Set("apikey", c.apiKey)
	token := c.apiKey
	if c.accessToken != "" {
		token = c.accessToken
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
		attribute.Int("http.response.status_code", resp.StatusCode),
	)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(respBody, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = string(respBody)
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	User        struct {
		ID string `json:"id"`
	} `json:"user"`
}

type likeRow struct {
	ViewerID  string `json:"user_id"`
	ListingID string `json:"listing_id"`
}

type roomRow struct {
	MemberA   string `json:"member_a"`
	MemberB   string `json:"member_b"`
	ListingID string `json:"listing_id,omitempty"`
}

type messageRow struct {
	RoomID   string `json:"room_id"`
	SenderID string `json:"sender_id"`
	Content  string `json:"content"`
}

// listingRow is the insert body for a listing; server-managed columns are
// left out.
type listingRow struct {
	OwnerID     string         `json:"owner_id"`
	Name        string         `json:"name"`
	Category    string         `json:"category,omitempty"`
	Description string         `json:"description,omitempty"`
	Address     domain.Address `json:"address"`
	Phone       string         `json:"phone,omitempty"`
	Photos      []string       `json:"photos,omitempty"`
	Status      string         `json:"status,omitempty"`
}

func newListingRow(l *domain.Listing) listingRow {
	return listingRow{
		OwnerID:     l.OwnerID,
		Name:        l.Name,
		Category:    l.Category,
		Description: l.Description,
		Address:     l.Address,
		Phone:       l.Phone,
		Photos:      l.Photos,
		Status:      string(l.Status),
	}
}

var (
	_ domain.ListingRepository = (*Client)(nil)
	_ domain.LikeRepository    = (*Client)(nil)
	_ domain.RoomRepository    = (*Client)(nil)
	_ domain.MessageRepository = (*Client)(nil)
)
