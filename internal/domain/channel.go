package domain

import (
	"fmt"
	"strings"
)

// Channel represents the delivery channel.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelInApp Channel = "IN_APP"
)

// DispatchChannels is the fixed fan-out order of a dispatch cycle.
var DispatchChannels = []Channel{ChannelEmail, ChannelSMS, ChannelInApp}

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelInApp:
		return true
	}
	return false
}

// Feature returns the per-subscriber capability that enables the channel.
func (c Channel) Feature() Feature {
	switch c {
	case ChannelEmail:
		return FeatureEmailChannel
	case ChannelSMS:
		return FeatureSMSChannel
	case ChannelInApp:
		return FeatureInAppChannel
	}
	return ""
}

func ParseChannelFromString(s string) (Channel, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	if normalized == "INAPP" {
		normalized = string(ChannelInApp)
	}
	ch := Channel(normalized)
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// Contact holds the addresses a notification can be delivered to.
// Empty fields mean the channel has no destination for this recipient.
type Contact struct {
	Name      string
	Email     string
	Phone     string
	InAppUser string
}

// Address returns the destination for the channel, or "" when absent.
func (c Contact) Address(channel Channel) string {
	switch channel {
	case ChannelEmail:
		return strings.TrimSpace(c.Email)
	case ChannelSMS:
		return strings.TrimSpace(c.Phone)
	case ChannelInApp:
		return strings.TrimSpace(c.InAppUser)
	}
	return ""
}
