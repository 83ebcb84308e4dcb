package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		out[mf.GetName()] = mf
	}
	return out
}

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RoomsCreated.Inc()
	m.RoomsDestroyed.WithLabelValues("swept").Inc()
	m.RoomsActive.Set(3)
	m.Connections.Set(5)
	m.Events.WithLabelValues("join-room").Add(2)
	m.DrawingsSaved.Inc()
	m.DrawingsRejected.Inc()
	m.ReplaysCompleted.Inc()

	got := gather(t, reg)
	for _, name := range []string{
		"telestrations_rooms_created_total",
		"telestrations_rooms_destroyed_total",
		"telestrations_rooms_active",
		"telestrations_connections",
		"telestrations_events_total",
		"telestrations_drawings_saved_total",
		"telestrations_drawings_rejected_total",
		"telestrations_replays_completed_total",
	} {
		assert.Contains(t, got, name)
	}

	assert.Equal(t, 3.0, got["telestrations_rooms_active"].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 2.0, got["telestrations_events_total"].GetMetric()[0].GetCounter().GetValue())

	destroyed := got["telestrations_rooms_destroyed_total"].GetMetric()[0]
	require.Len(t, destroyed.GetLabel(), 1)
	assert.Equal(t, "reason", destroyed.GetLabel()[0].GetName())
	assert.Equal(t, "swept", destroyed.GetLabel()[0].GetValue())
}

func TestNewTwiceOnOneRegistryPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func TestWatchJournalDrops(t *testing.T) {
	reg := prometheus.NewRegistry()
	var dropped int64
	WatchJournalDrops(reg, func() int64 { return dropped })

	dropped = 4
	got := gather(t, reg)
	require.Contains(t, got, "telestrations_journal_dropped_total")
	assert.Equal(t, 4.0, got["telestrations_journal_dropped_total"].GetMetric()[0].GetCounter().GetValue())
}
