package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	// Reset default registry for test isolation
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	m := New()

	if m.ConnectionsTotal == nil {
		t.Error("ConnectionsTotal is nil")
	}
	if m.ActiveConnections == nil {
		t.Error("ActiveConnections is nil")
	}
	if m.EventsTotal == nil {
		t.Error("EventsTotal is nil")
	}
	if m.RoomsDeleted == nil {
		t.Error("RoomsDeleted is nil")
	}

	// Verify metrics can be used without panic
	m.ConnectionsTotal.Inc()
	m.ActiveConnections.Set(5)
	m.ActiveRooms.Set(2)
	m.EventsTotal.WithLabelValues("Join", OutcomeApplied).Inc()
	m.EventsTotal.WithLabelValues("StartVoting", OutcomeRejected).Inc()
	m.BroadcastsTotal.Inc()
	m.SendFailuresTotal.Inc()
	m.RoomsCreatedTotal.Inc()
	m.RoomsDeleted.WithLabelValues("empty").Inc()
	m.ErrorsTotal.WithLabelValues("store").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("expected registered metric families")
	}
	for _, f := range families {
		if !strings.HasPrefix(f.GetName(), "roomsync_") {
			t.Errorf("metric %q missing roomsync_ prefix", f.GetName())
		}
	}
}

func TestNewWithIsolatedRegistries(t *testing.T) {
	a := NewWith(prometheus.NewRegistry())
	b := NewWith(prometheus.NewRegistry())

	a.EventsTotal.WithLabelValues("Join", OutcomeApplied).Inc()
	if got := testutil.ToFloat64(a.EventsTotal.WithLabelValues("Join", OutcomeApplied)); got != 1 {
		t.Errorf("a events = %v, want 1", got)
	}
	if got := testutil.ToFloat64(b.EventsTotal.WithLabelValues("Join", OutcomeApplied)); got != 0 {
		t.Errorf("b events = %v, want 0", got)
	}
}
