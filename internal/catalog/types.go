// Package catalog defines the product data model, the field extraction
// rules, and the browser-session interfaces the harvest pipeline runs on.
package catalog

import (
	"context"
	"time"
)

// ProductRecord is the structured result of extracting one product page.
// Records are immutable once built and persisted exactly once.
type ProductRecord struct {
	Name     string   `json:"name"`
	Quantity *string  `json:"quantity"`
	Price    float64  `json:"price"`
	Images   []string `json:"images"`
	Barcode  *string  `json:"barcode"`
	Labels   []string `json:"labels"`
	Details  *string  `json:"details"`
	StoreURL string   `json:"store_url"`
}

// Session is one isolated page context. Implementations suspend on every
// navigation, query and scroll; all methods honor the passed context.
type Session interface {
	// Navigate loads the URL and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error
	// WaitVisible blocks until the selector matches a visible element.
	WaitVisible(ctx context.Context, selector string) error
	// Text returns the text content of the first element matching selector.
	Text(ctx context.Context, selector string) (string, error)
	// Attributes returns the named attribute of every element matching
	// selector, in document order. Elements without the attribute are
	// skipped.
	Attributes(ctx context.Context, selector, attribute string) ([]string, error)
	// Count returns how many elements currently match selector.
	Count(ctx context.Context, selector string) (int, error)
	// ScrollBy issues one wheel-scroll grow trigger.
	ScrollBy(ctx context.Context, deltaY float64) error
	// Sleep waits in-page for the given duration.
	Sleep(ctx context.Context, d time.Duration) error
	// Close tears the page context down. Only the opener may call it.
	Close() error
}

// Browser opens page sessions against a shared browser process.
type Browser interface {
	NewSession(ctx context.Context) (Session, error)
	Close() error
}
