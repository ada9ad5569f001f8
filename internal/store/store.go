package store

import "time"

// ChannelStatus is the stored view of one channel worker.
//
// It is the JSON shape served by the status API and decoupled from the
// worker's own types.
type ChannelStatus struct {
	// Name is the channel name.
	Name string `json:"name"`

	// URL is the messages endpoint being polled.
	URL string `json:"url"`

	// State is the worker state ("starting", "polling", "backoff",
	// "cancelling", "stopped").
	State string `json:"state"`

	MessagesWritten int64 `json:"messages_written"`
	Dropped         int64 `json:"dropped"`
	FetchFailures   int64 `json:"fetch_failures"`

	// LastMessageAt is the instant of the last written message, nil before
	// the first one.
	LastMessageAt *time.Time `json:"last_message_at"`

	// LastPollAt is when the last request completed, nil before the first.
	LastPollAt *time.Time `json:"last_poll_at"`

	// Error is the most recent fetch or write error, nil if none occurred.
	Error *string `json:"error"`
}

// Store defines the interface for storing and subscribing to channel status updates.
//
// Store implementations must be safe for concurrent access. The pub/sub
// mechanism allows real-time updates to be pushed to connected clients
// (e.g., via Server-Sent Events).
type Store interface {
	// Update stores a channel status and notifies all subscribers.
	// The status is keyed by Name, so subsequent updates replace previous values.
	Update(status ChannelStatus)

	// GetAll returns all currently stored statuses sorted by name.
	// The returned slice is a snapshot; modifications do not affect the store.
	GetAll() []ChannelStatus

	// Subscribe returns a channel that receives status updates.
	// The returned channel is buffered; a slow consumer misses intermediate
	// changes but still receives the latest one.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan ChannelStatus

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan ChannelStatus)
}
