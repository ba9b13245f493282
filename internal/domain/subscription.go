package domain

import (
	"net/url"
	"strings"
	"time"
)

// Subscription pairs an account with one external YouTube channel.
// AccountEmail is a reference, not ownership: deleting a subscription never
// touches the account row.
type Subscription struct {
	ID           string     `json:"id"`
	AccountEmail string     `json:"account_email"`
	ChannelURL   string     `json:"channel_url"`
	ChannelName  string     `json:"channel_name,omitempty"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastCheckAt  *time.Time `json:"last_check_at,omitempty"`
}

// ValidChannelURL reports whether raw is a usable YouTube channel URL.
func ValidChannelURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	return host == "youtube.com" || host == "youtu.be" || strings.HasSuffix(host, ".youtube.com")
}
