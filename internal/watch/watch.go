// Package watch streams conversation messages as they are appended.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dyluth/parley/internal/events"
	"github.com/dyluth/parley/internal/transcript"
	"github.com/dyluth/parley/pkg/conversation"
)

// OutputFormat selects how streamed messages are written.
type OutputFormat string

const (
	// OutputFormatDefault writes one human-readable line per message
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON writes one JSON event per line
	OutputFormatJSON OutputFormat = "json"
)

// Source delivers message events. *conversation.Subscription satisfies it.
type Source interface {
	Events() <-chan *conversation.MessageEvent
	Errors() <-chan error
	Close() error
}

// Stream writes events from src to w until ctx is cancelled or src ends.
// When conversationID is set only its messages are written.
func Stream(ctx context.Context, src Source, format OutputFormat, conversationID string, w io.Writer) error {
	if format != OutputFormatDefault && format != OutputFormatJSON {
		return fmt.Errorf("unknown output format: %s", format)
	}
	defer src.Close()

	errs := src.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			fmt.Fprintf(os.Stderr, "⚠️  %v\n", err)

		case event, ok := <-src.Events():
			if !ok {
				return nil
			}
			if conversationID != "" && event.ConversationID != conversationID {
				continue
			}
			if err := write(w, format, event); err != nil {
				return err
			}
		}
	}
}

func write(w io.Writer, format OutputFormat, event *conversation.MessageEvent) error {
	if format == OutputFormatJSON {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal message event: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}
	_, err := fmt.Fprintln(w, transcript.FormatMessageLine(event.ConversationID, event.Message))
	return err
}

// natsSource adapts a NATS subscription to Source.
type natsSource struct {
	events chan *conversation.MessageEvent
	errors chan error
	unsub  func() error
	once   sync.Once
	mu     sync.Mutex
	closed bool
}

// FromNATS subscribes to every conversation subject on pub.
func FromNATS(pub *events.Publisher) (Source, error) {
	src := &natsSource{
		events: make(chan *conversation.MessageEvent, 64),
		errors: make(chan error),
	}

	sub, err := pub.Subscribe(events.SubjectAll, func(event conversation.MessageEvent) {
		src.mu.Lock()
		defer src.mu.Unlock()
		if src.closed {
			return
		}
		select {
		case src.events <- &event:
		default:
			// Slow consumer; delivery is at-most-once
		}
	})
	if err != nil {
		return nil, err
	}
	src.unsub = sub.Unsubscribe
	return src, nil
}

func (s *natsSource) Events() <-chan *conversation.MessageEvent { return s.events }
func (s *natsSource) Errors() <-chan error                      { return s.errors }

func (s *natsSource) Close() error {
	var err error
	s.once.Do(func() {
		err = s.unsub()
		s.mu.Lock()
		s.closed = true
		close(s.events)
		close(s.errors)
		s.mu.Unlock()
	})
	return err
}
