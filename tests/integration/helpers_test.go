//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mberezin/tubedigest/internal/testutil"
)

var accountSeq atomic.Int64

// uniqueEmail returns an email address unused by any previous test.
func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d@example.com", prefix, accountSeq.Add(1))
}

var channelSeq atomic.Int64

// uniqueChannelURL returns a distinct /channel/ style URL. The UC id is
// padded to the real 24-character shape so the resolver can parse it
// without fetching the channel page.
func uniqueChannelURL() string {
	return fmt.Sprintf("https://www.youtube.com/channel/UC%022d", channelSeq.Add(1))
}

type accountResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	NotifyAt    string `json:"notify_at"`
}

type subscriptionResponse struct {
	ID           string `json:"id"`
	AccountEmail string `json:"account_email"`
	ChannelURL   string `json:"channel_url"`
	ChannelName  string `json:"channel_name"`
	IsActive     bool   `json:"is_active"`
}

type registerResponse struct {
	Data struct {
		Account       accountResponse        `json:"account"`
		Subscriptions []subscriptionResponse `json:"subscriptions"`
		Errors        []struct {
			ChannelURL string `json:"channel_url"`
			Message    string `json:"message"`
		} `json:"errors"`
	} `json:"data"`
}

type loginResponse struct {
	Data struct {
		Account           accountResponse        `json:"account"`
		Subscriptions     []subscriptionResponse `json:"subscriptions"`
		SubscriptionCount int                    `json:"subscription_count"`
	} `json:"data"`
}

// registerAccount registers an account with the given channels and returns
// the decoded result.
func registerAccount(t *testing.T, client *testutil.Client, email, password string, channelURLs ...string) registerResponse {
	t.Helper()

	channels := make([]map[string]string, 0, len(channelURLs))
	for _, u := range channelURLs {
		channels = append(channels, map[string]string{"channel_url": u})
	}

	resp, err := client.POST("/api/v1/auth/register", map[string]interface{}{
		"email":    email,
		"password": password,
		"channels": channels,
	})
	require.NoError(t, err)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register failed: status=%d body=%s", resp.StatusCode, testutil.ReadBody(t, resp))
	}

	var result registerResponse
	testutil.DecodeJSON(t, resp, &result)
	return result
}
