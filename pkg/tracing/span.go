// Package tracing times the phases of a build. Spans nest through the
// context and the finished tree is written to a slog logger.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type contextKey struct{}

// Span is one timed phase. Children are phases started under it.
type Span struct {
	Name     string
	BuildID  string
	Start    time.Time
	Duration time.Duration

	mu       sync.Mutex
	children []*Span
	attrs    []any
}

// StartSpan starts a root span for buildID and stores it in the returned
// context.
func StartSpan(ctx context.Context, name string, buildID string) (context.Context, *Span) {
	s := &Span{Name: name, BuildID: buildID, Start: time.Now()}
	return context.WithValue(ctx, contextKey{}, s), s
}

// StartChildSpan starts a span under the one in ctx. Without a parent the
// span is still usable but not attached to any tree.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	s := &Span{Name: name, Start: time.Now()}
	if parent := SpanFromContext(ctx); parent != nil {
		s.BuildID = parent.BuildID
		parent.mu.Lock()
		parent.children = append(parent.children, s)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, contextKey{}, s), s
}

func (s *Span) End() {
	s.Duration = time.Since(s.Start)
}

// SetAttr records a key-value pair logged with the span.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, key, value)
	s.mu.Unlock()
}

// Children returns the spans started directly under s.
func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

// Find returns the first span named name in the tree rooted at s.
func (s *Span) Find(name string) *Span {
	if s.Name == name {
		return s
	}
	for _, c := range s.Children() {
		if found := c.Find(name); found != nil {
			return found
		}
	}
	return nil
}

func SpanFromContext(ctx context.Context) *Span {
	if s, ok := ctx.Value(contextKey{}).(*Span); ok {
		return s
	}
	return nil
}

// Log writes the tree rooted at s to l at debug level, parents first.
func (s *Span) Log(l *slog.Logger) {
	s.log(l, 0)
}

func (s *Span) log(l *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := append([]any{
		"build_id", s.BuildID,
		"span", s.Name,
		"duration_ms", s.Duration.Milliseconds(),
		"depth", depth,
	}, s.attrs...)
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	l.Debug("span", attrs...)
	for _, c := range children {
		c.log(l, depth+1)
	}
}
