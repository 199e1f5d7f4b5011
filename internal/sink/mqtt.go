package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/relabs-tech/ghg_sampler/internal/mqtt"
	"github.com/relabs-tech/ghg_sampler/internal/sample"
)

// MQTTSink publishes every record as JSON to the local broker, the
// on-device bus the console, web and display tools subscribe to.
type MQTTSink struct {
	client *mqtt.Client
	topic  string
}

// NewMQTTSink wraps an already connected client. The sink does not own
// the client, the caller disconnects it.
func NewMQTTSink(client *mqtt.Client, topic string) *MQTTSink {
	return &MQTTSink{client: client, topic: topic}
}

// Write publishes rec retained so a late subscriber immediately sees
// the latest sample.
func (s *MQTTSink) Write(_ context.Context, rec sample.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal sample: %w", err)
	}
	if err := s.client.Publish(s.topic, true, data); err != nil {
		return fmt.Errorf("publish sample: %w", err)
	}
	return nil
}

// Close is a no-op, the shared client outlives the sink.
func (s *MQTTSink) Close() {}
