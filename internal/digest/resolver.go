// Package digest implements the notification batch: resolving new uploads
// per distinct channel and fanning out digest emails to subscribers.
package digest

import (
	"context"
	"time"
)

// Video is one new upload found on a channel.
type Video struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Published time.Time `json:"published"`
}

// ChannelDigest is the resolver's result for one channel: the uploads it
// considers new since the last run. The resolver owns that judgement; the
// batch runner keeps no dedup memory of its own.
type ChannelDigest struct {
	ChannelURL   string  `json:"channel_url"`
	ChannelTitle string  `json:"channel_title"`
	Videos       []Video `json:"videos"`
}

// Resolver fetches and summarizes new uploads for a channel. Implementations
// are called exactly once per distinct channel per batch run.
type Resolver interface {
	Resolve(ctx context.Context, channelURL string) (*ChannelDigest, error)
}
