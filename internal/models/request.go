package models

import "time"

// Outcome describes the result of an authentication attempt
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeFailure
	OutcomeSuccess
)

// Comment carries a comment submission for anti-spam evaluation
type Comment struct {
	Content     string
	Honeypot    string
	RenderedAt  time.Time // zero when the form timestamp was missing
	PostID      string
	CommentType string
}

// RequestContext is the per-request input to a policy.
// It is built fresh by the host for every inbound event.
type RequestContext struct {
	Subject     string // normally the client address
	Method      string
	Path        string
	RawQuery    string
	Body        string // already capped by the caller
	ContentType string
	UserAgent   string
	Username    string

	// Status is the response status, set when evaluating after the handler ran
	Status int

	// Outcome is set for authentication attempts
	Outcome Outcome

	// Privileged marks callers the host has already authorized as administrators
	Privileged bool

	Comment *Comment
}
