package hub

import (
	"maps"

	"github.com/brianly1003/ideremote/internal/domain"
	"github.com/brianly1003/ideremote/internal/domain/events"
	"github.com/brianly1003/ideremote/internal/sync"
	"github.com/rs/zerolog"
)

// TraceSubscriber logs every broadcast at trace level and keeps per-type
// totals. The app registers one for the lifetime of the hub and logs the
// totals on shutdown.
type TraceSubscriber struct {
	id     string
	logger zerolog.Logger

	mu     sync.Mutex
	counts map[events.Type]int
	closed bool
	done   chan struct{}
}

// NewTraceSubscriber creates a trace subscriber writing to logger.
func NewTraceSubscriber(id string, logger zerolog.Logger) *TraceSubscriber {
	return &TraceSubscriber{
		id:     id,
		logger: logger,
		counts: make(map[events.Type]int),
		done:   make(chan struct{}),
	}
}

func (s *TraceSubscriber) ID() string { return s.id }

// Send records event. Serialization only happens when trace logging is on.
func (s *TraceSubscriber) Send(event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSubscriberClosed
	}
	s.counts[event.Type()]++

	if e := s.logger.Trace(); e.Enabled() {
		data, err := event.ToJSON()
		if err != nil {
			e.Discard()
			s.logger.Warn().Err(err).Str("event_type", string(event.Type())).Msg("broadcast does not serialize")
			return nil
		}
		e.Str("event_type", string(event.Type())).
			Int("size", len(data)).
			Time("timestamp", event.Timestamp()).
			Msg("event broadcast")
	}
	return nil
}

func (s *TraceSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

func (s *TraceSubscriber) Done() <-chan struct{} { return s.done }

// Counts returns how many broadcasts of each type were seen.
func (s *TraceSubscriber) Counts() map[events.Type]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.counts)
}

// Total returns the number of broadcasts seen.
func (s *TraceSubscriber) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.counts {
		n += c
	}
	return n
}

// LogTotals writes the per-type totals at debug level.
func (s *TraceSubscriber) LogTotals() {
	counts := s.Counts()
	if len(counts) == 0 {
		return
	}
	dict := zerolog.Dict()
	for t, n := range counts {
		dict = dict.Int(string(t), n)
	}
	s.logger.Debug().Dict("broadcasts", dict).Int("total", s.Total()).Msg("broadcast totals")
}
