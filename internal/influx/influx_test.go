package influx

import (
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/sweeney/plant-waterer/internal/logic"
)

type fakeWriter struct {
	points  []*write.Point
	flushes int
}

func (f *fakeWriter) WritePoint(p *write.Point) { f.points = append(f.points, p) }

func (f *fakeWriter) Flush() { f.flushes++ }

func (f *fakeWriter) line(i int) string {
	return write.PointToLineProtocol(f.points[i], time.Second)
}

func TestConfigEnabled(t *testing.T) {
	if (Config{}).Enabled() {
		t.Error("empty config should be disabled")
	}
	if !(Config{URL: "http://localhost:8086"}).Enabled() {
		t.Error("config with URL should be enabled")
	}
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no url", Config{Org: "o", Bucket: "b"}},
		{"no org", Config{URL: "http://x", Bucket: "b"}},
		{"no bucket", Config{URL: "http://x", Org: "o"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestWriteReading(t *testing.T) {
	w := &fakeWriter{}
	s := &Sink{writer: w, bootID: "b1"}

	s.WriteReading(2600, true, time.Unix(1780000000, 0))

	if len(w.points) != 1 {
		t.Fatalf("points: got %d, want 1", len(w.points))
	}
	got := w.line(0)
	for _, want := range []string{"reading,boot_id=b1 ", "dryness=2600i", "dry=true", " 1780000000"} {
		if !strings.Contains(got, want) {
			t.Errorf("line %q missing %q", got, want)
		}
	}
}

func TestWriteEvent(t *testing.T) {
	w := &fakeWriter{}
	s := &Sink{writer: w, bootID: "b1"}

	s.WriteEvent(logic.Event{
		Timestamp:  time.Unix(1780000000, 0),
		Type:       logic.EventCompensating,
		Doses:      1,
		CheckTime:  0,
		CheckCount: 0,
		Forced:     true,
	})
	s.WriteEvent(logic.Event{
		Timestamp: time.Unix(1780003600, 0),
		Type:      logic.EventActuatorFault,
		Doses:     1,
		Err:       "relay stuck",
	})

	if len(w.points) != 2 {
		t.Fatalf("points: got %d, want 2", len(w.points))
	}
	first := w.line(0)
	for _, want := range []string{"policy_event,boot_id=b1,type=COMPENSATING ", "doses=1i", "forced=true"} {
		if !strings.Contains(first, want) {
			t.Errorf("line %q missing %q", first, want)
		}
	}
	if strings.Contains(first, "error=") {
		t.Errorf("line %q should not carry an error field", first)
	}
	if second := w.line(1); !strings.Contains(second, `error="relay stuck"`) {
		t.Errorf("line %q missing error field", second)
	}
}

func TestCloseFlushes(t *testing.T) {
	w := &fakeWriter{}
	s := &Sink{writer: w}

	if err := s.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if w.flushes != 1 {
		t.Errorf("flushes: got %d, want 1", w.flushes)
	}
}
