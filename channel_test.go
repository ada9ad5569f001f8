package matterlog

import (
	"errors"
	"testing"
	"time"

	"github.com/jpalmerr/matterlog/internal/logsink"
)

func TestNewChannel_Valid(t *testing.T) {
	ch, err := NewChannel("general", "http://localhost:4242/")
	if err != nil {
		t.Fatalf("NewChannel() error = %v", err)
	}

	if ch.Name() != "general" {
		t.Errorf("Name() = %q, want %q", ch.Name(), "general")
	}
	if ch.BaseURL() != "http://localhost:4242/" {
		t.Errorf("BaseURL() = %q, want %q", ch.BaseURL(), "http://localhost:4242/")
	}
	if ch.MessagesURL() != "http://localhost:4242/api/messages" {
		t.Errorf("MessagesURL() = %q", ch.MessagesURL())
	}
	if ch.HasToken() {
		t.Error("HasToken() = true, want false")
	}
	if ch.Timeout() != 10*time.Second {
		t.Errorf("Timeout() = %v, want 10s", ch.Timeout())
	}
	if ch.Interval() != 0 {
		t.Errorf("Interval() = %v, want 0", ch.Interval())
	}
	if ch.UserAgent() != "matterlog/1.0" {
		t.Errorf("UserAgent() = %q, want matterlog/1.0", ch.UserAgent())
	}
}

func TestNewChannel_EmptyName(t *testing.T) {
	_, err := NewChannel("", "http://localhost:4242")
	if err == nil {
		t.Error("NewChannel() with empty name should return error")
	}
}

func TestNewChannel_InvalidName(t *testing.T) {
	names := []string{".", "..", "a/b", `a\b`, "../etc"}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			_, err := NewChannel(name, "http://localhost:4242")
			if !errors.Is(err, logsink.ErrInvalidChannel) {
				t.Errorf("NewChannel(%q) error = %v, want ErrInvalidChannel", name, err)
			}
		})
	}
}

func TestNewChannel_InvalidURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"no scheme", "localhost:4242"},
		{"ftp scheme", "ftp://localhost"},
		{"empty", ""},
		{"invalid chars", "http://[::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChannel("general", tt.url)
			if err == nil {
				t.Errorf("NewChannel() with URL %q should return error", tt.url)
			}
		})
	}
}

func TestNewChannel_MessagesURLWithoutTrailingSlash(t *testing.T) {
	ch, err := NewChannel("general", "https://bridge.example.com/mb")
	if err != nil {
		t.Fatalf("NewChannel() error = %v", err)
	}
	if ch.MessagesURL() != "https://bridge.example.com/mb/api/messages" {
		t.Errorf("MessagesURL() = %q", ch.MessagesURL())
	}
}

func TestWithToken(t *testing.T) {
	ch, err := NewChannel("general", "http://localhost:4242", WithToken("s3cret"))
	if err != nil {
		t.Fatalf("NewChannel() error = %v", err)
	}
	if !ch.HasToken() {
		t.Error("HasToken() = false, want true")
	}
}

func TestWithTimeout(t *testing.T) {
	ch, err := NewChannel("general", "http://localhost:4242", WithTimeout(3*time.Second))
	if err != nil {
		t.Fatalf("NewChannel() error = %v", err)
	}
	if ch.Timeout() != 3*time.Second {
		t.Errorf("Timeout() = %v, want 3s", ch.Timeout())
	}
}

func TestWithTimeout_Invalid(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		_, err := NewChannel("general", "http://localhost:4242", WithTimeout(d))
		if err == nil {
			t.Errorf("WithTimeout(%v) should return error", d)
		}
	}
}

func TestWithInterval(t *testing.T) {
	ch, err := NewChannel("general", "http://localhost:4242", WithInterval(2*time.Second))
	if err != nil {
		t.Fatalf("NewChannel() error = %v", err)
	}
	if ch.Interval() != 2*time.Second {
		t.Errorf("Interval() = %v, want 2s", ch.Interval())
	}
}

func TestWithInterval_Invalid(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
	}{
		{"zero", 0},
		{"negative", -time.Second},
		{"too long", 2 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChannel("general", "http://localhost:4242", WithInterval(tt.d))
			if err == nil {
				t.Errorf("WithInterval(%v) should return error", tt.d)
			}
		})
	}
}

func TestWithUserAgent(t *testing.T) {
	ch, err := NewChannel("general", "http://localhost:4242", WithUserAgent("archiver/2"))
	if err != nil {
		t.Fatalf("NewChannel() error = %v", err)
	}
	if ch.UserAgent() != "archiver/2" {
		t.Errorf("UserAgent() = %q, want archiver/2", ch.UserAgent())
	}

	if _, err := NewChannel("general", "http://localhost:4242", WithUserAgent("")); err == nil {
		t.Error("WithUserAgent(\"\") should return error")
	}
}

func TestChannel_MultipleOptions(t *testing.T) {
	ch, err := NewChannel("general", "http://localhost:4242",
		WithToken("t"),
		WithTimeout(time.Second),
		WithInterval(time.Minute),
		WithUserAgent("ua"),
	)
	if err != nil {
		t.Fatalf("NewChannel() error = %v", err)
	}
	if !ch.HasToken() || ch.Timeout() != time.Second || ch.Interval() != time.Minute || ch.UserAgent() != "ua" {
		t.Errorf("options not applied: %+v", ch)
	}
}
