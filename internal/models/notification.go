package models

import "time"

// NotificationStatus is the state of one delivery attempt
type NotificationStatus string

const (
	// NotificationPending is the implicit state before the gateway answers
	NotificationPending NotificationStatus = "pending"
	// NotificationSent means the gateway accepted the message
	NotificationSent NotificationStatus = "sent"
	// NotificationFailed means the gateway rejected the message or was unreachable
	NotificationFailed NotificationStatus = "failed"
	// NotificationDelivered is reserved for a delivery-receipt hook; nothing produces it yet
	NotificationDelivered NotificationStatus = "delivered"
)

// NotificationLog is one row per dispatch attempt per recipient; never updated
type NotificationLog struct {
	ID               int64              `json:"id" yaml:"id"`
	UserID           int64              `json:"user_id" yaml:"user_id"`
	DailySelectionID int64              `json:"daily_selection_id" yaml:"daily_selection_id"`
	Status           NotificationStatus `json:"status" yaml:"status"`
	Error            *string            `json:"error,omitempty" yaml:"error,omitempty"`
	MessageID        *string            `json:"message_id,omitempty" yaml:"message_id,omitempty"`
	SentAt           *time.Time         `json:"sent_at,omitempty" yaml:"sent_at,omitempty"`
	CreatedAt        time.Time          `json:"created_at" yaml:"created_at"`
}

// NotificationPayload is the message fanned out to recipients
type NotificationPayload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Recipient is a user with a deliverable push token
type Recipient struct {
	UserID int64  `json:"user_id"`
	Token  string `json:"-"`
}

// DispatchResult totals one fan-out across all batches
type DispatchResult struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Batches int `json:"batches"`
	Flagged int `json:"flagged"`
}

// DeliveryStats counts a selection's logs by status
type DeliveryStats struct {
	SelectionID int64 `json:"selection_id"`
	Total       int   `json:"total"`
	Sent        int   `json:"sent"`
	Failed      int   `json:"failed"`
	Delivered   int   `json:"delivered"`
	Pending     int   `json:"pending"`
}

// NotificationHistory is one page of a user's logs, most recent first
type NotificationHistory struct {
	Items []NotificationLog `json:"items"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
	Total int               `json:"total"`
}
