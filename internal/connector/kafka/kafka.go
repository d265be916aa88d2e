// Package kafka implements a Kafka-backed Destination Connector (spec §9),
// writing a destination's encoded content to a topic with batching,
// compression, and retry, grounded on the teacher's Kafka reporter plugin.
package kafka

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"github.com/corvushealth/engine/internal/connector"
	"github.com/corvushealth/engine/internal/message"
)

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 100 * time.Millisecond
	defaultCompression  = "snappy"
	defaultMaxAttempts  = 3
)

// Config is the destination's typed configuration, decoded by wire.go from
// the channel's declared destination settings.
type Config struct {
	Brokers      []string
	Topic        string
	KeyTemplate  string // ${var} template for the message key; empty means no key
	BatchSize    int
	BatchTimeout time.Duration
	Compression  string // none|gzip|snappy|lz4
	MaxAttempts  int
	Queue        bool
}

// Destination is a connector.Destination that writes to a Kafka topic.
// It never reads responses: Kafka has no request/response leg, so
// GetResponse always reports absent.
type Destination struct {
	name       string
	metaDataID int
	cfg        Config
	writer     *kafka.Writer

	sent   atomic.Uint64
	errors atomic.Uint64
}

// NewDestination builds a Kafka destination connector from validated
// config; the writer itself is constructed in Deploy.
func NewDestination(name string, metaDataID int, cfg Config) *Destination {
	return &Destination{name: name, metaDataID: metaDataID, cfg: cfg}
}

func (d *Destination) Name() string    { return d.name }
func (d *Destination) MetaDataID() int { return d.metaDataID }

// Deploy constructs the underlying kafka.Writer. Connection establishment
// is lazy in kafka-go, so Deploy never touches the network.
func (d *Destination) Deploy(ctx context.Context) error {
	writerConfig := kafka.WriterConfig{
		Brokers:      d.cfg.Brokers,
		Topic:        d.cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    d.cfg.BatchSize,
		BatchTimeout: d.cfg.BatchTimeout,
		MaxAttempts:  d.cfg.MaxAttempts,
		Async:        false,
	}
	switch d.cfg.Compression {
	case "none", "":
		writerConfig.CompressionCodec = nil
	case "gzip":
		writerConfig.CompressionCodec = compress.Gzip.Codec()
	case "snappy":
		writerConfig.CompressionCodec = compress.Snappy.Codec()
	case "lz4":
		writerConfig.CompressionCodec = compress.Lz4.Codec()
	default:
		return fmt.Errorf("kafka destination %s: invalid compression %q", d.name, d.cfg.Compression)
	}
	d.writer = kafka.NewWriter(writerConfig)
	return nil
}

func (d *Destination) Undeploy(ctx context.Context) error { return nil }

func (d *Destination) Start(ctx context.Context, sink connector.EventSink) error {
	sink.ConnectionStatus(d.name, connector.StatusConnected)
	return nil
}

// Stop flushes and closes the writer.
func (d *Destination) Stop(ctx context.Context) error {
	if d.writer == nil {
		return nil
	}
	return d.writer.Close()
}

// Send writes the destination's computed payload (spec §4.1 step 11:
// ENCODED, else TRANSFORMED, else RAW) as one Kafka message.
func (d *Destination) Send(ctx context.Context, cm *message.ConnectorMessage) error {
	payload := cm.EncodedOrTransformedOrRaw()

	msg := kafka.Message{
		Value: []byte(payload.Data),
		Time:  time.Now(),
	}
	if d.cfg.KeyTemplate != "" {
		msg.Key = []byte(message.ResolveTemplate(d.cfg.KeyTemplate, cm))
	}
	if len(cm.ConnectorMap) > 0 {
		msg.Headers = make([]kafka.Header, 0, len(cm.ConnectorMap))
		for k, v := range cm.ConnectorMap {
			msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(fmt.Sprint(v))})
		}
	}

	if err := d.writer.WriteMessages(ctx, msg); err != nil {
		d.errors.Add(1)
		return fmt.Errorf("kafka destination %s: write: %w", d.name, err)
	}
	d.sent.Add(1)
	return nil
}

// GetResponse always reports no response: a Kafka produce ack is not a
// ConnectorMessage-shaped RESPONSE slot (spec §3 lists RESPONSE as a
// request/response-transport concept the teacher's transports have and
// Kafka does not).
func (d *Destination) GetResponse(ctx context.Context, cm *message.ConnectorMessage) (message.Content, bool, error) {
	return message.Content{}, false, nil
}

func (d *Destination) QueueEnabled() bool { return d.cfg.Queue }
