// Package progress carries build progress from the indexing pipeline to
// whoever wants to render it. Sinks are purely observational: they never
// block the pipeline and never apply backpressure.
package progress

import (
	"log/slog"
	"sync/atomic"
)

// Phase names the pipeline stage an update belongs to.
type Phase string

const (
	PhaseLoad  Phase = "load"
	PhaseIndex Phase = "index"
	PhaseMerge Phase = "merge"
)

// Event is a single progress update.
type Event struct {
	Phase   Phase  `json:"phase"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// Sink receives progress updates. Implementations must be safe for
// concurrent use because batch workers report from their own goroutines.
type Sink interface {
	Report(ev Event)
}

// Func adapts a plain function to Sink.
type Func func(ev Event)

func (f Func) Report(ev Event) { f(ev) }

type discard struct{}

func (discard) Report(Event) {}

// Discard drops every update.
var Discard Sink = discard{}

type multi []Sink

func (m multi) Report(ev Event) {
	for _, s := range m {
		s.Report(ev)
	}
}

// Multi fans an update out to every non-nil sink.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return Discard
	case 1:
		return out[0]
	}
	return out
}

// OrDiscard returns s, or Discard when s is nil.
func OrDiscard(s Sink) Sink {
	if s == nil {
		return Discard
	}
	return s
}

// Channel forwards updates to ch, dropping them when ch is full.
type Channel struct {
	ch      chan<- Event
	dropped atomic.Int64
}

func NewChannel(ch chan<- Event) *Channel {
	return &Channel{ch: ch}
}

func (c *Channel) Report(ev Event) {
	select {
	case c.ch <- ev:
	default:
		c.dropped.Add(1)
	}
}

// Dropped returns how many updates did not fit in the channel.
func (c *Channel) Dropped() int64 {
	return c.dropped.Load()
}

// Log writes updates through slog, at most once per every stride updates of a
// phase plus the final one.
type Log struct {
	logger *slog.Logger
	stride int64
	count  atomic.Int64
}

func NewLog(logger *slog.Logger, stride int) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	if stride <= 0 {
		stride = 1
	}
	return &Log{
		logger: logger.With("component", "progress"),
		stride: int64(stride),
	}
}

func (l *Log) Report(ev Event) {
	n := l.count.Add(1)
	if ev.Current != ev.Total && n%l.stride != 0 {
		return
	}
	l.logger.Info("build progress",
		"phase", ev.Phase,
		"current", ev.Current,
		"total", ev.Total,
		"message", ev.Message,
	)
}
