// Package tsdb mirrors stored readings into InfluxDB for long-range dashboards.
package tsdb

import (
	"errors"
	"log/slog"
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"safety-monitor-backend/config"
	"safety-monitor-backend/internal/logx"
	"safety-monitor-backend/internal/metrics"
	"safety-monitor-backend/internal/model"
)

// Mirror writes readings through the client's non-blocking write API, which
// batches points in the background.
type Mirror struct {
	client      influxdb2.Client
	writer      api.WriteAPI
	measurement string
	done        chan struct{}
}

// NewMirror connects to InfluxDB. It returns an error when cfg is incomplete.
func NewMirror(cfg config.InfluxConfig, log *slog.Logger) (*Mirror, error) {
	if cfg.URL == "" || cfg.Token == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.New("influx url, token, org and bucket are required")
	}
	if log == nil {
		log = slog.Default()
	}
	opts := influxdb2.DefaultOptions().
		SetBatchSize(500).
		SetFlushInterval(1000)
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)
	m := &Mirror{
		client:      client,
		writer:      client.WriteAPI(cfg.Org, cfg.Bucket),
		measurement: cfg.Measurement,
		done:        make(chan struct{}),
	}
	go m.drainErrors(log)
	return m, nil
}

func (m *Mirror) drainErrors(log *slog.Logger) {
	defer close(m.done)
	for err := range m.writer.Errors() {
		metrics.IncInfluxWriteFailure()
		log.Warn("influx_write_failed", logx.Err(err))
	}
}

// WriteReading queues one point. It never blocks on the network.
func (m *Mirror) WriteReading(sensor model.Sensor, reading model.SensorReading) {
	m.writer.WritePoint(Point(m.measurement, sensor, reading))
}

// Point renders a reading as an Influx point tagged with its sensor.
func Point(measurement string, sensor model.Sensor, reading model.SensorReading) *write.Point {
	if measurement == "" {
		measurement = "sensor_reading"
	}
	return influxdb2.NewPoint(measurement,
		map[string]string{
			"sensor_id":   strconv.FormatInt(sensor.ID, 10),
			"sensor_type": sensor.Type,
			"location":    sensor.Location,
		},
		map[string]any{"value": reading.Value},
		reading.ReadingTime,
	)
}

// Close flushes pending points and releases the client.
func (m *Mirror) Close() {
	m.writer.Flush()
	m.client.Close()
	<-m.done
}
