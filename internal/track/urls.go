package track

import (
	"net/url"
	"strings"
)

// IsTrackableURL reports whether a URL belongs to a site worth
// tracking: http/https, and not one of the daemon's own served pages
// (the block and prompt screens).
func IsTrackableURL(rawURL, pagesBase string) bool {
	if pagesBase != "" && strings.HasPrefix(rawURL, pagesBase) {
		return false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}

// DomainOf extracts the lowercased host with a leading "www." stripped.
// Returns "" for untrackable URLs.
func DomainOf(rawURL, pagesBase string) string {
	if !IsTrackableURL(rawURL, pagesBase) {
		return ""
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// TrackableOrigin reduces a URL to scheme://host, dropping path and
// query so session snapshots never retain full URLs.
func TrackableOrigin(rawURL, pagesBase string) string {
	if !IsTrackableURL(rawURL, pagesBase) {
		return ""
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Scheme + "://" + strings.ToLower(parsed.Hostname())
}

// MatchBlockedDomain reports whether target falls under blocked: exact
// match or a dot-separated subdomain.
func MatchBlockedDomain(target, blocked string) bool {
	return target == blocked || strings.HasSuffix(target, "."+blocked)
}

// ActiveBlock describes the cooldown currently blocking a domain.
type ActiveBlock struct {
	BlockedDomain string
	BlockedUntil  int64
}

// FindActiveBlock scans the cooldown table for an entry covering the
// domain, preferring the one expiring last.
func FindActiveBlock(cooldowns map[string]int64, domain string, nowMs int64) *ActiveBlock {
	var matched *ActiveBlock
	for blockedDomain, until := range cooldowns {
		if until <= nowMs {
			continue
		}
		if MatchBlockedDomain(domain, blockedDomain) {
			if matched == nil || until > matched.BlockedUntil {
				matched = &ActiveBlock{BlockedDomain: blockedDomain, BlockedUntil: until}
			}
		}
	}
	return matched
}
