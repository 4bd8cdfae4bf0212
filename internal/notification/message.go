// Package notification delivers e-mail notifications on a best-effort basis.
// Callers enqueue messages after their transaction commits; delivery
// failures are logged and counted, never returned.
package notification

import (
	"fmt"
	"sort"
	"strings"
)

// Kind names a notification template.
type Kind string

const (
	BookingConfirmation    Kind = "BOOKING_CONFIRMATION"
	NewBookingNotification Kind = "NEW_BOOKING_NOTIFICATION"
	BookingConfirmed       Kind = "BOOKING_CONFIRMED"
	BookingRejected        Kind = "BOOKING_REJECTED"
	BookingCancelled       Kind = "BOOKING_CANCELLED"
	BookingCompleted       Kind = "BOOKING_COMPLETED"
	BookingUpdated         Kind = "BOOKING_UPDATED"
	ContractReady          Kind = "CONTRACT_READY"
	MoveInReminder         Kind = "MOVE_IN_REMINDER"
	OTPVerification        Kind = "OTP_VERIFICATION"
	WelcomeVerified        Kind = "WELCOME_VERIFIED"
)

var subjects = map[Kind]string{
	BookingConfirmation:    "Your booking request has been received",
	NewBookingNotification: "New booking request for your property",
	BookingConfirmed:       "Your booking has been confirmed",
	BookingRejected:        "Your booking has been rejected",
	BookingCancelled:       "A booking has been cancelled",
	BookingCompleted:       "Your booking is complete",
	BookingUpdated:         "Your booking has been updated",
	ContractReady:          "Your rental contract is ready",
	MoveInReminder:         "Reminder: your move-in is tomorrow",
	OTPVerification:        "Verify your email",
	WelcomeVerified:        "Welcome to Rentify",
}

// Message is one notification to one recipient.
type Message struct {
	To      string                 `json:"to"`
	Kind    Kind                   `json:"kind"`
	Payload map[string]interface{} `json:"payload"`
}

// Subject returns the e-mail subject line for the message kind.
func (m Message) Subject() string {
	if s, ok := subjects[m.Kind]; ok {
		return s
	}
	return "Rentify notification"
}

// Body renders the payload as plain text, one "key: value" line per field
// in key order.
func (m Message) Body() string {
	keys := make([]string, 0, len(m.Payload))
	for k := range m.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(m.Subject())
	b.WriteString("\n\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, m.Payload[k])
	}
	return b.String()
}
