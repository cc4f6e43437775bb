package track

import "testing"

const testPagesBase = "http://127.0.0.1:8746"

func TestIsTrackableURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/path", true},
		{"http://example.com", true},
		{"ftp://example.com", false},
		{"file:///etc/hosts", false},
		{"about:blank", false},
		{"", false},
		{testPagesBase + "/blocked?mode=cooldown&domain=example.com", false},
		{testPagesBase + "/prompt?sessionId=abc", false},
	}

	for _, tt := range tests {
		if got := IsTrackableURL(tt.url, testPagesBase); got != tt.want {
			t.Errorf("IsTrackableURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestDomainOf(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://Example.COM/path?q=1", "example.com"},
		{"https://www.example.com", "example.com"},
		{"https://news.example.com", "news.example.com"},
		{"chrome://settings", ""},
		{testPagesBase + "/blocked", ""},
	}

	for _, tt := range tests {
		if got := DomainOf(tt.url, testPagesBase); got != tt.want {
			t.Errorf("DomainOf(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestTrackableOrigin(t *testing.T) {
	got := TrackableOrigin("https://Example.com/some/path?query=1#frag", testPagesBase)
	if got != "https://example.com" {
		t.Errorf("TrackableOrigin = %q", got)
	}
	if got := TrackableOrigin("about:blank", testPagesBase); got != "" {
		t.Errorf("untrackable origin = %q, want empty", got)
	}
}

func TestMatchBlockedDomain(t *testing.T) {
	tests := []struct {
		target  string
		blocked string
		want    bool
	}{
		{"example.com", "example.com", true},
		{"news.example.com", "example.com", true},
		{"example.com", "news.example.com", false},
		{"badexample.com", "example.com", false},
		{"example.org", "example.com", false},
	}

	for _, tt := range tests {
		if got := MatchBlockedDomain(tt.target, tt.blocked); got != tt.want {
			t.Errorf("MatchBlockedDomain(%q, %q) = %v, want %v", tt.target, tt.blocked, got, tt.want)
		}
	}
}

func TestFindActiveBlock(t *testing.T) {
	now := int64(1_000_000)
	cooldowns := map[string]int64{
		"expired.com": now - 1,
		"example.com": now + 5_000,
	}

	if got := FindActiveBlock(cooldowns, "expired.com", now); got != nil {
		t.Errorf("expired cooldown matched: %+v", got)
	}

	got := FindActiveBlock(cooldowns, "news.example.com", now)
	if got == nil || got.BlockedDomain != "example.com" || got.BlockedUntil != now+5_000 {
		t.Errorf("subdomain match = %+v", got)
	}

	// Overlapping blocks prefer the latest expiry.
	cooldowns["news.example.com"] = now + 10_000
	got = FindActiveBlock(cooldowns, "news.example.com", now)
	if got == nil || got.BlockedUntil != now+10_000 {
		t.Errorf("latest-expiry preference = %+v", got)
	}
}
