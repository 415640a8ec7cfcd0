package domain

import "time"

// ListingStatus is the lifecycle state of a listing.
type ListingStatus string

const (
	ListingStatusActive   ListingStatus = "active"
	ListingStatusInactive ListingStatus = "inactive"
)

// Address is the structured postal address of a listing.
type Address struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Listing is a business record shown to viewers for liking or dismissal.
type Listing struct {
	// ID is the opaque, immutable identifier of the listing.
	ID string `json:"id"`

	// OwnerID is the account that manages the listing.
	OwnerID string `json:"owner_id"`

	Name        string  `json:"name"`
	Category    string  `json:"category,omitempty"`
	Description string  `json:"description,omitempty"`
	Address     Address `json:"address"`
	Phone       string  `json:"phone,omitempty"`

	// Photos holds ordered photo references (object storage keys or URLs).
	Photos []string `json:"photos,omitempty"`

	Status    ListingStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// LikeEdge is a persisted "viewer likes listing" relation.
type LikeEdge struct {
	ViewerID  string    `json:"user_id"`
	ListingID string    `json:"listing_id"`
	CreatedAt time.Time `json:"created_at"`
}
