package matterlog

import (
	"errors"
	"fmt"
	"time"

	"github.com/jpalmerr/matterlog/internal/logsink"
	"github.com/jpalmerr/matterlog/internal/poller"
)

const defaultChannelTimeout = poller.DefaultTimeout

// Channel is a bridge endpoint whose messages are logged under one name.
//
// Channel is immutable after creation via [NewChannel]. All fields are
// private with getter methods.
//
// Channels are configured using the functional options pattern with
// [ChannelOption] functions such as [WithToken], [WithTimeout],
// [WithInterval] and [WithUserAgent].
type Channel struct {
	name      string
	baseURL   string
	token     string
	timeout   time.Duration
	interval  time.Duration
	userAgent string
}

// Name returns the channel name. It is also the directory below the save
// root that holds the channel's log files.
func (c Channel) Name() string {
	return c.name
}

// BaseURL returns the bridge API root as configured.
func (c Channel) BaseURL() string {
	return c.baseURL
}

// MessagesURL returns the endpoint that is polled for this channel.
func (c Channel) MessagesURL() string {
	u, _ := poller.MessagesURL(c.baseURL) // validated by NewChannel
	return u
}

// HasToken reports whether a bearer token is sent with every request.
// The token itself is not exposed.
func (c Channel) HasToken() bool {
	return c.token != ""
}

// Timeout returns the per-request timeout.
// Defaults to 10 seconds if not explicitly set via [WithTimeout].
func (c Channel) Timeout() time.Duration {
	return c.timeout
}

// Interval returns the channel's idle delay between successful polls.
// Returns 0 if no custom interval was specified, meaning the global
// polling interval configured via [WithPollingInterval] is used.
func (c Channel) Interval() time.Duration {
	return c.interval
}

// UserAgent returns the User-Agent header sent to the bridge.
func (c Channel) UserAgent() string {
	return c.userAgent
}

// NewChannel creates a [Channel] with the given name, bridge base URL and
// options.
//
// The name must be usable as a single directory name: it cannot be empty,
// "." or "..", or contain a path separator. The baseURL must use http or
// https; "/api/messages" is appended to it, with or without a trailing slash.
//
// Example:
//
//	ch, err := matterlog.NewChannel("general", "http://localhost:4242/",
//	    matterlog.WithToken(os.Getenv("BRIDGE_TOKEN")),
//	    matterlog.WithInterval(2 * time.Second),
//	)
func NewChannel(name, baseURL string, opts ...ChannelOption) (Channel, error) {
	if name == "" {
		return Channel{}, errors.New("channel name cannot be empty")
	}
	if err := logsink.ValidateChannel(name); err != nil {
		return Channel{}, err
	}
	if _, err := poller.MessagesURL(baseURL); err != nil {
		return Channel{}, fmt.Errorf("channel %q: %w", name, err)
	}

	cfg := &channelConfig{
		timeout:   defaultChannelTimeout,
		userAgent: poller.DefaultUserAgent,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Channel{}, err
		}
	}

	return Channel{
		name:      name,
		baseURL:   baseURL,
		token:     cfg.token,
		timeout:   cfg.timeout,
		interval:  cfg.interval,
		userAgent: cfg.userAgent,
	}, nil
}
