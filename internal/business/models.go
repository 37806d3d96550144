// Package business resolves a dialed number to the business that owns it and
// the AI agent configuration the call should run under.
//
// This service only reads these entities; CRUD lives in the management API.
package business

import "errors"

var ErrNumberNotFound = errors.New("business: phone number not found")

type Business struct {
	ID          string `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
	Active      bool   `json:"active" db:"is_active"`
}

type PhoneNumber struct {
	ID         string `json:"id" db:"id"`
	Number     string `json:"number" db:"phone_number"`
	BusinessID string `json:"business_id" db:"business_id"`
	Status     string `json:"status" db:"status"`
}

// AgentConfig is the per-business AI configuration.
//
// APIKey is a capability token: it flows from here through the stream
// handshake into the realtime dial and nowhere else. Never log it.
type AgentConfig struct {
	APIKey             string `json:"-" db:"openai_api_key"`
	CustomInstructions string `json:"custom_instructions" db:"custom_instructions"`
	Active             bool   `json:"active" db:"is_active"`
}

// Context is everything the inbound handler needs to route one call.
type Context struct {
	Number   PhoneNumber
	Business Business

	// Agent is nil when the business has no AI configuration row at all.
	Agent *AgentConfig
}

// AgentReady reports whether the AI leg can be used for this business.
func (c Context) AgentReady() bool {
	return c.Agent != nil && c.Agent.Active && c.Agent.APIKey != ""
}
