package matterlog

import "time"

// Message is a chat message after it has been written to the log.
//
// Instant is always in UTC with microsecond precision; it is the value that
// determines the log file the message was appended to.
type Message struct {
	// Channel is the name of the channel the message was received on.
	Channel string

	// Instant is the normalized message time.
	Instant time.Time

	// Username is the author as reported by the bridge.
	Username string

	// Text is the full message text, possibly spanning several lines.
	Text string
}
