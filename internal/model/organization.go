// Package model defines data structures for the session orchestrator.
package model

import "time"

// Organization is a tenant. Its id is immutable and every other record
// references it for isolation.
type Organization struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	PhoneNumbers []string  `json:"phone_numbers"`
	CreatedAt    time.Time `json:"created_at"`
}

// Channel is the transport/medium a tenant's agent is reachable through.
type Channel string

const (
	ChannelVoice Channel = "voice"
	ChannelWeb   Channel = "web"
	ChannelSMS   Channel = "sms"
)
