// Package notification describes the outbound messages the engine emits when
// a subscription or payment changes. Delivery is at-least-once and never
// blocks the transition that triggered it.
package notification

import (
	"context"

	"github.com/google/uuid"
)

// Kind identifies the template and intent of a notification
type Kind string

const (
	KindTrialExpiring         Kind = "trial_expiring"
	KindTrialExpired          Kind = "trial_expired"
	KindSubscriptionExpired   Kind = "subscription_expired"
	KindSubscriptionActivated Kind = "subscription_activated"
	KindPaymentFailed         Kind = "payment_failed"
	KindOfflineSubmitted      Kind = "offline_submitted"
	KindOfflineApproved       Kind = "offline_approved"
	KindOfflineRejected       Kind = "offline_rejected"
)

// Subject returns the default subject line for the kind
func (k Kind) Subject() string {
	switch k {
	case KindTrialExpiring:
		return "Your free trial ends soon"
	case KindTrialExpired:
		return "Your free trial has ended"
	case KindSubscriptionExpired:
		return "Your subscription has expired"
	case KindSubscriptionActivated:
		return "Your subscription is active"
	case KindPaymentFailed:
		return "Your payment could not be completed"
	case KindOfflineSubmitted:
		return "We received your payment proof"
	case KindOfflineApproved:
		return "Your payment was approved"
	case KindOfflineRejected:
		return "Your payment was rejected"
	}
	return "Account notification"
}

// Message is one (kind, user, payload) tuple to deliver
type Message struct {
	Kind    Kind              `json:"kind"`
	UserID  uuid.UUID         `json:"user_id"`
	Payload map[string]string `json:"payload,omitempty"`
}

// Dispatcher accepts messages for asynchronous delivery. Enqueue returns as
// soon as the message is queued.
type Dispatcher interface {
	Enqueue(ctx context.Context, msg Message) error
}

// Recipient is the resolved delivery address for a message
type Recipient struct {
	UserID uuid.UUID
	Name   string
	Email  string
}

// Sender performs the actual delivery of one message
type Sender interface {
	Send(ctx context.Context, to Recipient, msg Message) error
}
