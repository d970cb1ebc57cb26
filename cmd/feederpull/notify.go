package main

import (
	"fmt"
	"time"

	"github.com/nerrad567/feederpull/internal/feeder"
	"github.com/nerrad567/feederpull/internal/infrastructure/mqtt"
	"github.com/nerrad567/feederpull/internal/pipeline"
)

// eventPublisher is the part of *mqtt.Client the run notifier uses.
type eventPublisher interface {
	PublishJSON(topic string, v any) error
	Topics() mqtt.Topics
}

// mqttNotifier publishes run lifecycle events as JSON.
type mqttNotifier struct {
	pub eventPublisher
}

func (n mqttNotifier) RunStarted(e pipeline.RunEvent) error {
	return n.pub.PublishJSON(n.pub.Topics().RunStarted(), e)
}

func (n mqttNotifier) FeederWritten(e pipeline.FeederEvent) error {
	return n.pub.PublishJSON(n.pub.Topics().FeederWritten(e.CircuitID), e)
}

func (n mqttNotifier) FeederFailed(e pipeline.FeederEvent) error {
	return n.pub.PublishJSON(n.pub.Topics().FeederFailed(e.CircuitID), e)
}

func (n mqttNotifier) RunFinished(s pipeline.Summary) error {
	return n.pub.PublishJSON(n.pub.Topics().RunFinished(), s)
}

// sampleWriter is the part of *influxdb.Client the sample mirror uses.
type sampleWriter interface {
	WriteSample(circuitID, tagName string, ts time.Time, value float64)
}

// influxMirror copies fetched series into InfluxDB.
type influxMirror struct {
	w sampleWriter
}

// Mirror writes every point whose timestamp parses. Points with an
// unparseable timestamp are skipped and reported in the returned error.
func (m influxMirror) Mirror(s feeder.TagSeries) error {
	var bad int
	var first string
	for _, p := range s.Points {
		ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
		if err != nil {
			if bad == 0 {
				first = p.Timestamp
			}
			bad++
			continue
		}
		m.w.WriteSample(s.CircuitID, s.TagName, ts, p.Value)
	}
	if bad > 0 {
		return fmt.Errorf("mirroring %s/%s: %d of %d timestamps unparseable (first %q)",
			s.CircuitID, s.TagName, bad, len(s.Points), first)
	}
	return nil
}
