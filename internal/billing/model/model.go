package model

import "time"

// User is the slice of the Supabase users row this service reads and mutates.
type User struct {
	ID               string  `json:"id"`
	StripeCustomerID *string `json:"stripe_customer_id"`
	IsPremium        bool    `json:"is_premium"`
	TicketCount      int     `json:"ticket_count"`
}

// EventRef identifies a provider event for the processed-event ledger.
type EventRef struct {
	ID   string
	Type string
}

type ProcessedEvent struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	UserID      *string   `json:"user_id"`
	ProcessedAt time.Time `json:"processed_at"`
}
