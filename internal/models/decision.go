package models

import (
	"net/http"
	"time"
)

// Action is the outcome category of a policy evaluation
type Action string

const (
	ActionAllow       Action = "allow"
	ActionDeny        Action = "deny"
	ActionRateLimited Action = "rate_limited"
)

// Generic reasons. They are safe to show to the caller and never name
// the rule or threshold that fired.
const (
	ReasonLocked      = "locked"
	ReasonBlocked     = "blocked"
	ReasonRateLimited = "rate_limited"
	ReasonRetryLater  = "retry_later"
)

// Decision is the result of evaluating one policy against one request
type Decision struct {
	Action     Action
	HTTPStatus int
	Reason     string
	Count      int // counter value after this request, 0 when nothing was counted
	// RetryAfter is how long the caller should wait; zero when unknown
	RetryAfter time.Duration
}

// RetryLaterAfter is the Retry-After sent when a lock check could not be completed
const RetryLaterAfter = 5 * time.Second

// Allowed reports whether the request may proceed
func (d Decision) Allowed() bool {
	return d.Action == ActionAllow
}

// Allow returns a permitting decision carrying the current count
func Allow(count int) Decision {
	return Decision{Action: ActionAllow, HTTPStatus: http.StatusOK, Count: count}
}

// Deny returns a rejecting decision with the given status
func Deny(status int, reason string) Decision {
	return Decision{Action: ActionDeny, HTTPStatus: status, Reason: reason}
}

// RateLimit returns a 429 decision
func RateLimit(count int) Decision {
	return Decision{
		Action:     ActionRateLimited,
		HTTPStatus: http.StatusTooManyRequests,
		Reason:     ReasonRateLimited,
		Count:      count,
	}
}

// RetryLater is returned when a lock check could not be completed
func RetryLater() Decision {
	return Decision{
		Action:     ActionDeny,
		HTTPStatus: http.StatusServiceUnavailable,
		Reason:     ReasonRetryLater,
		RetryAfter: RetryLaterAfter,
	}
}
