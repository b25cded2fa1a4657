package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sweeney/plant-waterer/internal/logic"
)

func TestObserveReading(t *testing.T) {
	m := New()
	m.ObserveReading(2450)

	if got := testutil.ToFloat64(m.dryness); got != 2450 {
		t.Errorf("dryness: got %v, want 2450", got)
	}
}

func TestReadError(t *testing.T) {
	m := New()
	m.ReadError()
	m.ReadError()

	if got := testutil.ToFloat64(m.readErrors); got != 2 {
		t.Errorf("read errors: got %v, want 2", got)
	}
}

func TestObserveEvent(t *testing.T) {
	m := New()

	m.ObserveEvent(logic.Event{Type: logic.EventWatered, Doses: 1})
	m.ObserveEvent(logic.Event{Type: logic.EventWatered, Doses: 1})
	m.ObserveEvent(logic.Event{Type: logic.EventWatered, Doses: 2, Forced: true})
	m.ObserveEvent(logic.Event{Type: logic.EventSkipped, Doses: 1})
	m.ObserveEvent(logic.Event{Type: logic.EventActuatorFault, Doses: 1})

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"watered events", testutil.ToFloat64(m.events.WithLabelValues("WATERED")), 3},
		{"skipped events", testutil.ToFloat64(m.events.WithLabelValues("SKIPPED")), 1},
		{"fault events", testutil.ToFloat64(m.events.WithLabelValues("ACTUATOR_FAULT")), 1},
		{"sensor doses", testutil.ToFloat64(m.doses.WithLabelValues("sensor")), 2},
		{"minimum doses", testutil.ToFloat64(m.doses.WithLabelValues("minimum")), 2},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestSetWindowAndWatering(t *testing.T) {
	m := New()
	m.SetWindow(12, 3)
	m.SetWatering(true)

	if got := testutil.ToFloat64(m.checkTime); got != 12 {
		t.Errorf("window position: got %v, want 12", got)
	}
	if got := testutil.ToFloat64(m.checkCount); got != 3 {
		t.Errorf("window doses: got %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.watering); got != 1 {
		t.Errorf("watering: got %v, want 1", got)
	}

	m.SetWatering(false)
	if got := testutil.ToFloat64(m.watering); got != 0 {
		t.Errorf("watering: got %v, want 0", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveReading(1000)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "plant_waterer_dryness 1000") {
		t.Errorf("expected dryness gauge in output, got:\n%s", body)
	}
}
