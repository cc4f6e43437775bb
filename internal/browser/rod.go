package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/tabwarden/tabwarden/internal/logger"
)

// RodTabs implements Tabs over the Chrome DevTools Protocol.
type RodTabs struct {
	browser *rod.Browser
}

// NewRodTabs connects to a running DevTools endpoint, or launches a
// browser when controlURL is empty.
func NewRodTabs(controlURL string) (*RodTabs, error) {
	if controlURL == "" {
		launched, err := launcher.New().Headless(false).Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		controlURL = launched
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	logger.Debug().Str("control_url", controlURL).Msg("Connected to browser")
	return &RodTabs{browser: b}, nil
}

// ActiveTab returns the first visible page, which is the focused tab of
// the most recently used window.
func (r *RodTabs) ActiveTab(ctx context.Context) (*Tab, error) {
	pages, err := r.browser.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}

	for _, page := range pages {
		tab, err := r.describe(ctx, page)
		if err != nil {
			continue
		}
		if tab.Active {
			return tab, nil
		}
	}
	return nil, nil
}

// Get resolves a tab by target ID.
func (r *RodTabs) Get(ctx context.Context, id string) (*Tab, error) {
	page, err := r.browser.Context(ctx).PageFromTarget(proto.TargetTargetID(id))
	if err != nil {
		return nil, fmt.Errorf("tab %s unavailable: %w", id, err)
	}
	return r.describe(ctx, page)
}

// Navigate redirects a tab to a URL.
func (r *RodTabs) Navigate(ctx context.Context, id, url string) error {
	page, err := r.browser.Context(ctx).PageFromTarget(proto.TargetTargetID(id))
	if err != nil {
		return fmt.Errorf("tab %s unavailable: %w", id, err)
	}
	if err := page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate tab %s: %w", id, err)
	}
	return nil
}

// Create opens a new tab on the given URL.
func (r *RodTabs) Create(ctx context.Context, url string) (*Tab, error) {
	page, err := r.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("failed to create tab: %w", err)
	}
	return r.describe(ctx, page)
}

// Close removes a tab.
func (r *RodTabs) Close(ctx context.Context, id string) error {
	page, err := r.browser.Context(ctx).PageFromTarget(proto.TargetTargetID(id))
	if err != nil {
		return fmt.Errorf("tab %s unavailable: %w", id, err)
	}
	if err := page.Close(); err != nil {
		return fmt.Errorf("failed to close tab %s: %w", id, err)
	}
	return nil
}

// List enumerates all open tabs.
func (r *RodTabs) List(ctx context.Context) ([]Tab, error) {
	pages, err := r.browser.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}

	tabs := make([]Tab, 0, len(pages))
	for _, page := range pages {
		tab, err := r.describe(ctx, page)
		if err != nil {
			continue
		}
		tabs = append(tabs, *tab)
	}
	return tabs, nil
}

// Disconnect closes the DevTools connection without touching the
// browser itself.
func (r *RodTabs) Disconnect() error {
	return r.browser.Close()
}

func (r *RodTabs) describe(ctx context.Context, page *rod.Page) (*Tab, error) {
	info, err := page.Context(ctx).Info()
	if err != nil {
		return nil, fmt.Errorf("failed to read tab info: %w", err)
	}

	tab := &Tab{
		ID:  string(info.TargetID),
		URL: info.URL,
	}

	// Visibility is the DevTools proxy for "this tab is foreground in
	// its window".
	res, err := page.Context(ctx).Eval(`() => document.visibilityState`)
	if err == nil && res.Value.Str() == "visible" {
		tab.Active = true
	}

	return tab, nil
}
