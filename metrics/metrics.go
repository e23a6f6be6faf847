// Package metrics exports dictionary events as Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/andreyvit/edict"
)

// EventCounter counts dictionary events by kind. Its Observe method is
// suitable as edict.Options.OnEvent.
//
// It exports one counter set, <namespace>_events_total, labelled with
// "kind". Every kind is present from the start with a zero value.
type EventCounter struct {
	events *prometheus.CounterVec
}

func NewEventCounter(namespace string) *EventCounter {
	c := &EventCounter{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Non-fatal dictionary conditions, by kind.",
		}, []string{"kind"}),
	}
	for _, k := range edict.AllEventKinds {
		c.events.WithLabelValues(k.String())
	}
	return c
}

func (c *EventCounter) Register(r prometheus.Registerer) error {
	return r.Register(c.events)
}

func (c *EventCounter) Observe(ev edict.Event) {
	c.events.WithLabelValues(ev.Kind.String()).Inc()
}

// Hook returns an OnEvent function that counts the event and then calls next,
// if any.
func (c *EventCounter) Hook(next func(edict.Event)) func(edict.Event) {
	return func(ev edict.Event) {
		c.Observe(ev)
		if next != nil {
			next(ev)
		}
	}
}

// Instrument returns a copy of opt whose OnEvent also feeds c.
func (c *EventCounter) Instrument(opt edict.Options) edict.Options {
	opt.OnEvent = c.Hook(opt.OnEvent)
	return opt
}

// Count returns how many events of the given kind have been observed.
func (c *EventCounter) Count(kind edict.EventKind) uint64 {
	var value dto.Metric
	if c.events.WithLabelValues(kind.String()).Write(&value) != nil {
		return 0
	}
	return uint64(value.GetCounter().GetValue())
}
