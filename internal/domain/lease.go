package domain

import "time"

// Lease is the read model the reminder scheduler scans.
type Lease struct {
	ID           string
	SubscriberID string
	PlanID       string
	PropertyID   string
	TenantID     string
	Tenant       Contact
	RentAmount   int64
	Currency     string
	DueDate      time.Time
	Active       bool
}

// WebhookEndpoint is a subscriber-configured outbound webhook target.
type WebhookEndpoint struct {
	SubscriberID string
	URL          string
	Secret       string
	Enabled      bool
}
