// Package influx records sensor readings and policy events as time series in
// InfluxDB. Writes are asynchronous and never block the control loop.
package influx

import (
	"errors"
	"log"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/sweeney/plant-waterer/internal/logic"
)

const (
	measurementReading = "reading"
	measurementEvent   = "policy_event"
)

// Config selects the InfluxDB target.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
	BootID string
}

// Enabled reports whether a target was configured.
func (c Config) Enabled() bool {
	return c.URL != ""
}

// pointWriter is the subset of api.WriteAPI the sink uses.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Sink writes points through the non-blocking write API.
type Sink struct {
	client influxdb2.Client
	writer pointWriter
	bootID string
}

// New creates a sink for cfg. Write errors are logged in the background.
func New(cfg Config) (*Sink, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.New("influx config incomplete")
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().SetBatchSize(20).SetFlushInterval(10_000))
	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)

	go func() {
		for err := range writeAPI.Errors() {
			log.Printf("influx: write failed: %v", err)
		}
	}()

	return &Sink{client: client, writer: writeAPI, bootID: cfg.BootID}, nil
}

// WriteReading records one dryness sample.
func (s *Sink) WriteReading(value uint16, dry bool, at time.Time) {
	s.writer.WritePoint(influxdb2.NewPoint(measurementReading,
		map[string]string{"boot_id": s.bootID},
		map[string]interface{}{
			"dryness": int(value),
			"dry":     dry,
		},
		at))
}

// WriteEvent records a policy event.
func (s *Sink) WriteEvent(e logic.Event) {
	fields := map[string]interface{}{
		"doses":       e.Doses,
		"check_time":  e.CheckTime,
		"check_count": e.CheckCount,
		"forced":      e.Forced,
	}
	if e.Err != "" {
		fields["error"] = e.Err
	}
	s.writer.WritePoint(influxdb2.NewPoint(measurementEvent,
		map[string]string{"boot_id": s.bootID, "type": string(e.Type)},
		fields,
		e.Timestamp))
}

// Close flushes pending points and releases the client.
func (s *Sink) Close() error {
	s.writer.Flush()
	if s.client != nil {
		s.client.Close()
	}
	return nil
}
