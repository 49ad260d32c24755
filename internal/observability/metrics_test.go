package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCommandExecuted(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.CommandExecuted("success", 1.2)
	m.CommandExecuted("success", 0.4)
	m.CommandExecuted("timeout", 15.0)

	if got := testutil.ToFloat64(m.CommandCounter.WithLabelValues("success")); got != 2 {
		t.Errorf("success count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CommandCounter.WithLabelValues("timeout")); got != 1 {
		t.Errorf("timeout count = %v, want 1", got)
	}
}

func TestPollTick(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.PollTick("elevation", "ok")
	m.PollTick("elevation", "fetch_failed")
	m.PollTick("device", "empty")

	if got := testutil.CollectAndCount(m.PollTicks); got != 3 {
		t.Errorf("label combinations = %d, want 3", got)
	}
	if got := testutil.ToFloat64(m.PollTicks.WithLabelValues("elevation", "ok")); got != 1 {
		t.Errorf("elevation ok ticks = %v, want 1", got)
	}
}

func TestNotifications(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.NotificationSent("device")
	m.NotificationSent("device")
	m.NotificationFailed("device")

	if got := testutil.ToFloat64(m.NotificationCounter.WithLabelValues("device", "sent")); got != 2 {
		t.Errorf("sent = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.NotificationCounter.WithLabelValues("device", "failed")); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}
}

func TestPollerSelfDisabled(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.PollerSelfDisabled("elevation")

	if got := testutil.ToFloat64(m.PollerDisabled.WithLabelValues("elevation")); got != 1 {
		t.Errorf("disabled = %v, want 1", got)
	}
}
