package provider

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/reminder-engine/internal/domain"
)

// EmailSender delivers an email through the configured gateway.
type EmailSender interface {
	SendEmail(ctx context.Context, to string, subject string, body string) domain.SendResult
}

// SMSSender delivers a text message through the configured gateway.
type SMSSender interface {
	SendSMS(ctx context.Context, to string, body string) domain.SendResult
}

// InAppNotifier pushes an in-app notification to a platform user.
type InAppNotifier interface {
	NotifyInApp(ctx context.Context, userID string, text string) domain.SendResult
}

// Message is the rendered content handed to a channel adapter.
type Message struct {
	Subject string
	Body    string
}

// Adapters bundles one adapter per channel. A nil adapter fails its channel with
// a ConfigurationError result.
type Adapters struct {
	Email EmailSender
	SMS   SMSSender
	InApp InAppNotifier
}

// Send routes msg to the adapter for channel.
func (a Adapters) Send(ctx context.Context, channel domain.Channel, address string, msg Message) domain.SendResult {
	switch channel {
	case domain.ChannelEmail:
		if a.Email == nil {
			return domain.SendErr((&ConfigurationError{Channel: channel, Missing: "adapter"}).Error())
		}
		return a.Email.SendEmail(ctx, address, msg.Subject, msg.Body)
	case domain.ChannelSMS:
		if a.SMS == nil {
			return domain.SendErr((&ConfigurationError{Channel: channel, Missing: "adapter"}).Error())
		}
		return a.SMS.SendSMS(ctx, address, msg.Body)
	case domain.ChannelInApp:
		if a.InApp == nil {
			return domain.SendErr((&ConfigurationError{Channel: channel, Missing: "adapter"}).Error())
		}
		return a.InApp.NotifyInApp(ctx, address, msg.Body)
	}
	return domain.SendErr(fmt.Sprintf("unsupported channel %q", channel))
}
