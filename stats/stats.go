package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Stage string

const (
	StageWatch  Stage = "watch"
	StageHandle Stage = "handle"
	StageReplay Stage = "replay"
)

type EventType string

const (
	EventTypeFetched  EventType = "fetched"
	EventTypeFiltered EventType = "filtered"
	EventTypeSkipped  EventType = "skipped"
	EventTypeHandled  EventType = "handled"
	EventTypeFailed   EventType = "failed"
	EventTypeError    EventType = "error"
)

type Event struct {
	Stage  Stage
	Type   EventType
	UID    uint32
	Err    error
	Detail string
}

type Summary struct {
	Fetched   int
	Filtered  int
	Skipped   int
	Handled   int
	Failed    int
	Errors    int
	LastError error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"fetched", s.Fetched,
		"filtered", s.Filtered,
		"skipped", s.Skipped,
		"handled", s.Handled,
		"failed", s.Failed,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.apply(evt)
		}
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

func (c *Collector) apply(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeFetched:
		c.summary.Fetched++
	case EventTypeFiltered:
		c.summary.Filtered++
	case EventTypeSkipped:
		c.summary.Skipped++
	case EventTypeHandled:
		c.summary.Handled++
	case EventTypeFailed:
		c.summary.Failed++
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

// Stream fans decision events out to subscribers. The watcher and the
// replay command emit; the reporter and the progress bar consume. Every
// subscriber sees every event.
type Stream struct {
	ctx      context.Context
	mu       sync.Mutex
	subs     []chan Event
	closed   bool
	subWG    sync.WaitGroup
	closeOne sync.Once
}

func NewStream(ctx context.Context) *Stream {
	return &Stream{ctx: ctx}
}

func (s *Stream) Emit(evt Event) {
	s.mu.Lock()
	subs := s.subs
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case <-s.ctx.Done():
			return
		case ch <- evt:
		}
	}
}

func (s *Stream) Subscribe(name string, logger *slog.Logger, fn func(context.Context, <-chan Event) error) {
	ch := make(chan Event, 128)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return
	}
	s.subs = append(s.subs, ch)
	s.mu.Unlock()

	s.subWG.Add(1)
	go func() {
		defer s.subWG.Done()
		if err := fn(s.ctx, ch); err != nil && logger != nil {
			logger.Debug("stats subscriber stopped", "name", name, "err", err)
		}
	}()
}

// Close ends the event stream and waits for subscribers to drain.
func (s *Stream) Close() {
	s.closeOne.Do(func() {
		s.mu.Lock()
		s.closed = true
		subs := s.subs
		s.mu.Unlock()
		for _, ch := range subs {
			close(ch)
		}
	})
	s.subWG.Wait()
}

type Reporter struct {
	collector *Collector
	logger    *slog.Logger
	started   time.Time
}

func NewReporter(stream *Stream, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		collector: NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
	stream.Subscribe("stats-reporter", logger, reporter.consume)
	return reporter
}

func (r *Reporter) consume(ctx context.Context, events <-chan Event) error {
	r.collector.Run(ctx, events)
	summary := r.collector.Snapshot()
	attrs := append(summary.LogAttrs(), "duration", time.Since(r.started))
	if r.logger != nil {
		r.logger.Info("stats summary", attrs...)
	}
	return ctx.Err()
}

func (r *Reporter) Summary() Summary {
	return r.collector.Snapshot()
}
