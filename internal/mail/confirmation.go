package mail

import (
	"context"
	"fmt"
	"strings"

	"github.com/mberezin/tubedigest/internal/domain"
)

// Confirmation sends the post-registration confirmation email.
type Confirmation struct {
	sender *Sender
}

// NewConfirmation creates a confirmation mailer on top of the SMTP sender.
func NewConfirmation(sender *Sender) *Confirmation {
	return &Confirmation{sender: sender}
}

// SendConfirmation implements identity.ConfirmationMailer.
func (c *Confirmation) SendConfirmation(ctx context.Context, account *domain.Account, subs []domain.Subscription) error {
	name := account.DisplayName
	if name == "" {
		name = account.Email
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", name)
	b.WriteString("Thanks for subscribing to the YouTube digest service.\n\n")
	b.WriteString("Your subscriptions:\n")
	for _, sub := range subs {
		if sub.ChannelName != "" {
			fmt.Fprintf(&b, "- %s (%s)\n", sub.ChannelName, sub.ChannelURL)
		} else {
			fmt.Fprintf(&b, "- %s\n", sub.ChannelURL)
		}
	}
	fmt.Fprintf(&b, "\nDaily digest time: %s\n", account.NotifyAt)
	b.WriteString("\nYou will receive an email when subscribed channels upload new videos.\n")

	return c.sender.Send(ctx, Message{
		To:      account.Email,
		Subject: "YouTube digest subscription confirmed",
		Body:    b.String(),
	})
}
