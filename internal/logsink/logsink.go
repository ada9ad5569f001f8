// Package logsink appends chat messages to per-channel, per-day text files.
//
// Files live at <root>/<channel>/<YYYY>/<MM>/<DD>.txt where the date is the
// UTC calendar date of the message. Every append is a separate
// open/write/close cycle; no file handles are cached between calls.
package logsink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jpalmerr/matterlog/internal/timestamp"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// ErrInvalidChannel is returned when a channel name cannot be used as a
// single path element under the sink root.
var ErrInvalidChannel = errors.New("invalid channel name")

var tracer = otel.Tracer("github.com/jpalmerr/matterlog/internal/logsink")

// Sink writes log records below a root directory.
//
// Sink holds no mutable state and is safe for concurrent use by workers
// writing to different channels.
type Sink struct {
	root string
}

// New creates a [Sink] rooted at root. The directory is created lazily on
// the first append.
func New(root string) *Sink {
	return &Sink{root: root}
}

// Root returns the directory the sink writes below.
func (s *Sink) Root() string {
	return s.root
}

// Path returns the file that records for instant on channel are appended to.
func (s *Sink) Path(channel string, instant time.Time) string {
	u := instant.UTC()
	return filepath.Join(
		s.root,
		channel,
		fmt.Sprintf("%04d", u.Year()),
		fmt.Sprintf("%02d", int(u.Month())),
		fmt.Sprintf("%02d.txt", u.Day()),
	)
}

// Append writes one tab-separated record per line of text to the file for
// the instant's UTC date, creating directories as needed.
//
// Each record has the form "<instant>\t<username>\t<line>\n". All records of
// a call are written with a single write, so a message is appended as a
// whole. Text without any lines writes nothing.
func (s *Sink) Append(ctx context.Context, channel string, instant time.Time, username, text string) error {
	if err := ValidateChannel(channel); err != nil {
		return err
	}

	lines := SplitLines(text)
	if len(lines) == 0 {
		return nil
	}

	path := s.Path(channel, instant)

	_, span := tracer.Start(ctx, "logsink.append", trace.WithAttributes(
		attribute.String("matterlog.channel", channel),
		attribute.String("matterlog.path", path),
		attribute.Int("matterlog.lines", len(lines)),
	))
	defer span.End()

	if err := writeRecords(path, formatRecords(instant, username, lines)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// formatRecords renders the records for one message.
func formatRecords(instant time.Time, username string, lines []string) []byte {
	stamp := timestamp.Format(instant)

	var b strings.Builder
	for _, line := range lines {
		b.WriteString(stamp)
		b.WriteByte('\t')
		b.WriteString(username)
		b.WriteByte('\t')
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// writeRecords appends data to path in one open/write/close cycle.
func writeRecords(path string, data []byte) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("create log directory %s: %w", filepath.Dir(path), err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close log file %s: %w", path, cerr)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write log file %s: %w", path, err)
	}
	return nil
}

// ValidateChannel rejects names that would escape the sink root.
func ValidateChannel(channel string) error {
	switch {
	case channel == "", channel == ".", channel == "..":
		return fmt.Errorf("%w: %q", ErrInvalidChannel, channel)
	case strings.ContainsAny(channel, `/\`), strings.ContainsRune(channel, 0):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidChannel, channel)
	}
	return nil
}
