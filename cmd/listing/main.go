package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/blackmichael/discovery/internal/backend"
	"github.com/blackmichael/discovery/internal/domain"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		email       string
		password    string
		backendURL  string
		apiKey      string
		name        string
		category    string
		description string
		phone       string
		address     domain.Address
		photos      []string
		inactive    bool
	)

	flag.StringVar(&email, "email", envOrDefault("DISCOVERY_EMAIL", ""), "Owner account email")
	flag.StringVar(&password, "password", envOrDefault("DISCOVERY_PASSWORD", ""), "Owner account password")
	flag.StringVar(&backendURL, "backend", envOrDefault("BACKEND_URL", ""), "Hosted back-end URL")
	flag.StringVar(&apiKey, "api-key", envOrDefault("BACKEND_API_KEY", ""), "Hosted back-end public API key")
	flag.StringVar(&name, "name", "", "Listing name")
	flag.StringVar(&category, "category", "", "Listing category (e.g. cafe)")
	flag.StringVar(&description, "description", "", "Listing description")
	flag.StringVar(&phone, "phone", "", "Contact phone number")
	flag.StringVar(&address.Street, "street", "", "Street address")
	flag.StringVar(&address.City, "city", "", "City")
	flag.StringVar(&address.State, "state", "", "State or region")
	flag.StringVar(&address.PostalCode, "postal-code", "", "Postal code")
	flag.StringVar(&address.Country, "country", "", "Country")
	flag.Func("photo", "Photo reference; repeat for more than one", func(v string) error {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("photo reference must not be empty")
		}
		photos = append(photos, v)
		return nil
	})
	flag.BoolVar(&inactive, "inactive", false, "Create the listing as inactive")
	flag.Parse()

	if email == "" || password == "" {
		return fmt.Errorf("--email and --password are required (or set DISCOVERY_EMAIL and DISCOVERY_PASSWORD)")
	}
	if backendURL == "" || apiKey == "" {
		return fmt.Errorf("--backend and --api-key are required (or set BACKEND_URL and BACKEND_API_KEY)")
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("--name is required")
	}

	ctx := context.Background()
	client := backend.NewClient(backendURL, apiKey)

	fmt.Printf("Logging in as %s...\n", email)
	if err := client.Login(ctx, email, password); err != nil {
		return err
	}
	fmt.Printf("Authenticated as %s\n", client.UserID())

	listing := domain.Listing{
		Name:        name,
		Category:    category,
		Description: description,
		Address:     address,
		Phone:       phone,
		Photos:      photos,
		Status:      domain.ListingStatusActive,
	}
	if inactive {
		listing.Status = domain.ListingStatusInactive
	}

	fmt.Printf("Creating listing %q...\n", name)
	if err := client.CreateListing(ctx, &listing); err != nil {
		return err
	}
	fmt.Printf("Listing created: %s (%s)\n", listing.ID, listing.Status)
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
