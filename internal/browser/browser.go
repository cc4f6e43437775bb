// Package browser holds the narrow collaborator interfaces the engine
// talks to: tab resolution/redirect/close and user notifications. The
// engine never depends on a concrete browser API shape.
package browser

import "context"

// Tab is the engine's view of a browser tab.
type Tab struct {
	ID     string
	URL    string
	Active bool
}

// Tabs resolves and manipulates browser tabs.
type Tabs interface {
	// ActiveTab returns the currently focused tab, or nil when no
	// trackable tab has focus.
	ActiveTab(ctx context.Context) (*Tab, error)

	// Get resolves a tab by ID. Returns an error when the tab is gone.
	Get(ctx context.Context, id string) (*Tab, error)

	// Navigate redirects a tab to a URL.
	Navigate(ctx context.Context, id, url string) error

	// Create opens a new tab on the given URL.
	Create(ctx context.Context, url string) (*Tab, error)

	// Close removes a tab.
	Close(ctx context.Context, id string) error

	// List enumerates all open tabs.
	List(ctx context.Context) ([]Tab, error)
}

// Notifier delivers a titled alert to the user. Failures are logged by
// callers and never propagated as engine errors.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}
