// Package youtube resolves channel uploads through the public Atom feeds,
// so no API key is required.
package youtube

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mberezin/tubedigest/internal/digest"
)

// ErrChannelNotFound is returned when a channel id cannot be determined
// from the given URL.
var ErrChannelNotFound = errors.New("channel not found")

const maxBodySize = 4 << 20

var channelIDPattern = regexp.MustCompile(`"channelId":"(UC[0-9A-Za-z_-]{22})"`)

// Config configures the feed resolver.
type Config struct {
	// FeedBaseURL is the Atom feed endpoint, typically
	// https://www.youtube.com/feeds/videos.xml.
	FeedBaseURL string
	// Lookback bounds how far back an upload may be published and still
	// count as new.
	Lookback time.Duration
	// RateLimit caps outbound requests per second across all channels.
	RateLimit float64
}

// Resolver implements digest.Resolver by fetching channel Atom feeds.
type Resolver struct {
	client  *http.Client
	config  Config
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewResolver creates a feed resolver. The client may be nil, in which
// case http.DefaultClient is used.
func NewResolver(client *http.Client, config Config, logger *slog.Logger) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	if config.FeedBaseURL == "" {
		config.FeedBaseURL = "https://www.youtube.com/feeds/videos.xml"
	}
	if config.Lookback <= 0 {
		config.Lookback = 24 * time.Hour
	}
	limit := rate.Limit(config.RateLimit)
	if config.RateLimit <= 0 {
		limit = rate.Inf
	}
	return &Resolver{
		client:  client,
		config:  config,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Resolve fetches the channel's feed and returns the uploads published
// within the lookback window.
func (r *Resolver) Resolve(ctx context.Context, channelURL string) (*digest.ChannelDigest, error) {
	channelID, err := r.channelID(ctx, channelURL)
	if err != nil {
		return nil, err
	}

	feed, err := r.fetchFeed(ctx, channelID)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-r.config.Lookback)
	videos := make([]digest.Video, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		if entry.Published.Before(cutoff) {
			continue
		}
		videos = append(videos, digest.Video{
			ID:        entry.VideoID,
			Title:     entry.Title,
			URL:       entry.Link.Href,
			Published: entry.Published,
		})
	}

	r.logger.Debug("channel resolved",
		"channel_url", channelURL,
		"channel_id", channelID,
		"new_videos", len(videos))

	return &digest.ChannelDigest{
		ChannelURL:   channelURL,
		ChannelTitle: feed.Title,
		Videos:       videos,
	}, nil
}

// channelID extracts the UC id from a /channel/ URL directly; handle and
// custom URLs require fetching the channel page and scraping the id out of
// the embedded player config.
func (r *Resolver) channelID(ctx context.Context, channelURL string) (string, error) {
	u, err := url.Parse(channelURL)
	if err != nil {
		return "", fmt.Errorf("parse channel url: %w", err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, part := range parts {
		if part == "channel" && i+1 < len(parts) && strings.HasPrefix(parts[i+1], "UC") {
			return parts[i+1], nil
		}
	}

	body, err := r.get(ctx, channelURL)
	if err != nil {
		return "", fmt.Errorf("fetch channel page: %w", err)
	}

	match := channelIDPattern.FindSubmatch(body)
	if match == nil {
		return "", fmt.Errorf("%w: %s", ErrChannelNotFound, channelURL)
	}
	return string(match[1]), nil
}

func (r *Resolver) fetchFeed(ctx context.Context, channelID string) (*atomFeed, error) {
	feedURL := fmt.Sprintf("%s?channel_id=%s", r.config.FeedBaseURL, url.QueryEscape(channelID))

	body, err := r.get(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return &feed, nil
}

func (r *Resolver) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "tubedigest/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, rawURL)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
}

// atomFeed is the slice of the YouTube Atom schema the digest needs.
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	VideoID   string    `xml:"videoId"`
	Title     string    `xml:"title"`
	Link      atomLink  `xml:"link"`
	Published time.Time `xml:"published"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
}
