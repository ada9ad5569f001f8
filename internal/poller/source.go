package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultUserAgent identifies matterlog to the bridge.
	DefaultUserAgent = "matterlog/1.0"

	// DefaultTimeout bounds a single request.
	DefaultTimeout = 10 * time.Second

	defaultRetryInitial = time.Second
	defaultRetryMax     = 30 * time.Second
)

var tracer = otel.Tracer("github.com/jpalmerr/matterlog/internal/poller")

// Message is one chat message as returned by the bridge API.
//
// Username, Text and Timestamp are required. The remaining fields are
// decoded when present but not interpreted.
type Message struct {
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`

	Channel  string `json:"channel,omitempty"`
	Gateway  string `json:"gateway,omitempty"`
	Protocol string `json:"protocol,omitempty"`
	Event    string `json:"event,omitempty"`
}

// wireMessage detects missing required fields.
type wireMessage struct {
	Username  *string `json:"username"`
	Text      *string `json:"text"`
	Timestamp *string `json:"timestamp"`
	Channel   string  `json:"channel"`
	Gateway   string  `json:"gateway"`
	Protocol  string  `json:"protocol"`
	Event     string  `json:"event"`
}

// Hooks report fetch outcomes to the owner of a [Source]. Nil hooks are
// skipped. Hooks run on the source's goroutine and must not block.
type Hooks struct {
	// OnSuccess is called after a 200 response was decoded, before the
	// messages are delivered.
	OnSuccess func(count int, latency time.Duration)

	// OnFailure is called for every failed request, before the retry delay.
	OnFailure func(err error, latency time.Duration)

	// OnInvalid is called for each array element that is not a valid message.
	OnInvalid func(index int, err error)
}

// Config describes the endpoint a [Source] polls.
type Config struct {
	// Channel names the owning channel in logs.
	Channel string

	// BaseURL is the bridge API root; /api/messages is appended.
	BaseURL string

	// Token, when set, is sent as a bearer token.
	Token string

	// UserAgent defaults to [DefaultUserAgent].
	UserAgent string

	// Timeout bounds each request. Defaults to [DefaultTimeout].
	Timeout time.Duration

	// Interval is the idle delay after a successful round. Zero polls again
	// immediately.
	Interval time.Duration

	// RetryInitial and RetryMax bound the exponential delay between failed
	// requests. They default to 1s and 30s.
	RetryInitial time.Duration
	RetryMax     time.Duration

	// Client is shared between sources. A new one is created when nil.
	Client *Client

	Logger *slog.Logger
	Hooks  Hooks
}

// Source is an indefinite, restartable producer of messages for one
// endpoint. It keeps no cursor: the bridge is expected to return only
// messages not yet delivered.
type Source struct {
	channel      string
	url          string
	headers      map[string]string
	timeout      time.Duration
	interval     time.Duration
	retryInitial time.Duration
	retryMax     time.Duration
	client       *Client
	logger       *slog.Logger
	hooks        Hooks
}

// New validates cfg and creates a [Source].
func New(cfg Config) (*Source, error) {
	endpoint, err := MessagesURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.Interval < 0 {
		return nil, errors.New("interval cannot be negative")
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	headers := map[string]string{
		"User-Agent": userAgent,
		"Accept":     "application/json",
	}
	if cfg.Token != "" {
		headers["Authorization"] = "Bearer " + cfg.Token
	}

	s := &Source{
		channel:      cfg.Channel,
		url:          endpoint,
		headers:      headers,
		timeout:      cfg.Timeout,
		interval:     cfg.Interval,
		retryInitial: cfg.RetryInitial,
		retryMax:     cfg.RetryMax,
		client:       cfg.Client,
		logger:       cfg.Logger,
		hooks:        cfg.Hooks,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.retryInitial <= 0 {
		s.retryInitial = defaultRetryInitial
	}
	if s.retryMax < s.retryInitial {
		s.retryMax = max(defaultRetryMax, s.retryInitial)
	}
	if s.client == nil {
		s.client = NewClient()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// MessagesURL returns the messages endpoint for a bridge base URL. A
// trailing slash on baseURL is optional.
func MessagesURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("base URL must use http or https, got %q", baseURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base URL has no host: %q", baseURL)
	}
	return u.JoinPath("api", "messages").String(), nil
}

// URL returns the endpoint the source polls.
func (s *Source) URL() string {
	return s.url
}

// Run polls the endpoint until ctx is cancelled, sending every decoded
// message to out in the order the bridge returned it.
//
// Failed requests are logged and retried after an exponential delay; they
// never end the loop. Run returns ctx.Err() once cancelled, without waiting
// for an in-flight request to complete.
func (s *Source) Run(ctx context.Context, out chan<- Message) error {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = s.retryInitial
	retry.MaxInterval = s.retryMax
	retry.Reset()

	for {
		messages, err := s.Fetch(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err != nil {
			delay := retry.NextBackOff()
			s.logger.Error("failed to fetch messages",
				"channel", s.channel,
				"url", s.url,
				"status_code", statusCode(err),
				"error", err,
				"retry_in", delay.String(),
			)
			if !sleep(ctx, delay) {
				return ctx.Err()
			}
			continue
		}
		retry.Reset()

		for _, msg := range messages {
			select {
			case out <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if s.interval > 0 && !sleep(ctx, s.interval) {
			return ctx.Err()
		}
	}
}

// Fetch performs one request and decodes the response. Hooks are invoked
// for the outcome. A body that is not a JSON array is reported as a failure;
// individual invalid elements are skipped.
func (s *Source) Fetch(ctx context.Context) ([]Message, error) {
	ctx, span := tracer.Start(ctx, "poller.fetch", trace.WithAttributes(
		attribute.String("matterlog.channel", s.channel),
		attribute.String("url.full", s.url),
	))
	defer span.End()

	resp := s.client.Get(ctx, s.url, s.headers, s.timeout)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	err := resp.Error
	var messages []Message
	if err == nil {
		messages, err = s.decode(resp.Body)
	}

	if err != nil {
		// cancellation is not a failure of the endpoint
		if ctx.Err() == nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if s.hooks.OnFailure != nil {
				s.hooks.OnFailure(err, resp.Latency)
			}
		}
		return nil, err
	}

	span.SetAttributes(attribute.Int("matterlog.messages", len(messages)))
	if s.hooks.OnSuccess != nil {
		s.hooks.OnSuccess(len(messages), resp.Latency)
	}
	return messages, nil
}

// decode parses a JSON array of messages, skipping invalid elements.
func (s *Source) decode(body []byte) ([]Message, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	messages := make([]Message, 0, len(raw))
	for i, item := range raw {
		msg, err := decodeMessage(item)
		if err != nil {
			s.logger.Warn("skipping invalid message",
				"channel", s.channel,
				"index", i,
				"error", err,
			)
			if s.hooks.OnInvalid != nil {
				s.hooks.OnInvalid(i, err)
			}
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// decodeMessage validates a single array element.
func decodeMessage(data json.RawMessage) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, fmt.Errorf("invalid message object: %w", err)
	}

	var missing []string
	if w.Username == nil {
		missing = append(missing, "username")
	}
	if w.Text == nil {
		missing = append(missing, "text")
	}
	if w.Timestamp == nil {
		missing = append(missing, "timestamp")
	}
	if len(missing) > 0 {
		return Message{}, fmt.Errorf("message missing required fields %v", missing)
	}

	return Message{
		Username:  *w.Username,
		Text:      *w.Text,
		Timestamp: *w.Timestamp,
		Channel:   w.Channel,
		Gateway:   w.Gateway,
		Protocol:  w.Protocol,
		Event:     w.Event,
	}, nil
}

// statusCode extracts the HTTP status from a fetch error, or 0.
func statusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// sleep waits for d or until ctx is done, reporting whether the full delay
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
