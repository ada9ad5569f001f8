package matterlog

import (
	"errors"
	"time"
)

// channelConfig holds mutable state during channel construction.
type channelConfig struct {
	token     string
	timeout   time.Duration
	interval  time.Duration
	userAgent string
}

// ChannelOption is a function that configures a [Channel] during construction.
//
// ChannelOption implements the functional options pattern, allowing optional
// configuration to be passed to [NewChannel] in a type-safe, extensible way.
// Options return an error if validation fails.
//
// Built-in options: [WithToken], [WithTimeout], [WithInterval], [WithUserAgent].
type ChannelOption func(*channelConfig) error

// WithToken sets a static bearer token sent as "Authorization: Bearer <token>".
//
// An empty token sends no Authorization header.
//
// Example:
//
//	ch, err := matterlog.NewChannel("general", url,
//	    matterlog.WithToken("s3cret"),
//	)
func WithToken(token string) ChannelOption {
	return func(cfg *channelConfig) error {
		cfg.token = token
		return nil
	}
}

// WithTimeout sets the HTTP request timeout for this channel.
//
// A request that does not complete within this duration is treated as a
// failed poll and retried after a backoff delay. Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) ChannelOption {
	return func(cfg *channelConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithInterval sets a custom idle delay between successful polls of this
// channel, overriding the global polling interval.
//
// Example:
//
//	busy, _ := matterlog.NewChannel("general", url,
//	    matterlog.WithInterval(time.Second),
//	)
//
// Returns an error if the interval is zero or negative. To poll without any
// delay, set the global interval to zero with [WithPollingInterval].
func WithInterval(d time.Duration) ChannelOption {
	return func(cfg *channelConfig) error {
		if d <= 0 {
			return errors.New("interval must be positive")
		}
		if d > time.Hour {
			return errors.New("interval must not exceed 1 hour")
		}
		cfg.interval = d
		return nil
	}
}

// WithUserAgent overrides the User-Agent header. Defaults to "matterlog/1.0".
//
// Returns an error if the value is empty.
func WithUserAgent(ua string) ChannelOption {
	return func(cfg *channelConfig) error {
		if ua == "" {
			return errors.New("user agent cannot be empty")
		}
		cfg.userAgent = ua
		return nil
	}
}
