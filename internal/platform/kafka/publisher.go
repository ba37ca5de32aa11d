// Package kafka streams completed ledger transactions to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"regcore/internal/ledger"
	"regcore/internal/platform/config"
	"regcore/internal/platform/metrics"
)

const defaultBufferSize = 1024

// Producer is the part of *kgo.Client the publisher writes through.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Publisher queues ledger events in memory and a single Run loop writes them
// to Kafka. Publish never blocks; a full queue drops the event.
type Publisher struct {
	producer Producer
	client   *kgo.Client
	topic    string
	inbox    chan ledger.Event
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// New connects to the brokers and makes sure the topic exists.
func New(ctx context.Context, cfg config.Kafka, opts ...Option) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if err := EnsureTopic(ctx, client, cfg); err != nil {
		client.Close()
		return nil, err
	}

	p := NewWithProducer(client, cfg.Topic, cfg.BufferSize, opts...)
	p.client = client
	return p, nil
}

// NewWithProducer builds a publisher around an existing producer.
func NewWithProducer(producer Producer, topic string, bufferSize int, opts ...Option) *Publisher {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	p := &Publisher{
		producer: producer,
		topic:    topic,
		inbox:    make(chan ledger.Event, bufferSize),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EnsureTopic creates the topic unless it already exists.
func EnsureTopic(ctx context.Context, client *kgo.Client, cfg config.Kafka) error {
	partitions := cfg.Partitions
	if partitions <= 0 {
		partitions = -1
	}
	rf := cfg.ReplicationFactor
	if rf <= 0 {
		rf = -1
	}

	resp, err := kadm.NewClient(client).CreateTopic(ctx, partitions, rf, nil, cfg.Topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", cfg.Topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", cfg.Topic, resp.Err)
	}
	return nil
}

// Publish implements ledger.Publisher.
func (p *Publisher) Publish(ctx context.Context, event ledger.Event) {
	select {
	case p.inbox <- event:
	default:
		p.metrics.IncrementLedgerFailure("publish")
		p.logger.WarnContext(ctx, "ledger event queue full, dropping event",
			"transaction_id", event.TransactionID,
			"sv_trid", event.ServerTRID,
		)
	}
}

// Run writes queued events until ctx is done. Produce failures are logged
// and the loop continues.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-p.inbox:
			if err := p.produce(ctx, event); err != nil {
				p.metrics.IncrementLedgerFailure("publish")
				p.logger.ErrorContext(ctx, "failed to publish ledger event",
					"transaction_id", event.TransactionID,
					"error", err,
				)
			}
		}
	}
}

func (p *Publisher) produce(ctx context.Context, event ledger.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal ledger event: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(strconv.FormatInt(event.RegistrarID, 10)),
		Value: value,
	}
	if err := p.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce ledger event: %w", err)
	}
	return nil
}

// Health reports whether any broker answers.
func (p *Publisher) Health(ctx context.Context) error {
	if p.client == nil {
		return nil
	}
	return p.client.Ping(ctx)
}

func (p *Publisher) Close() {
	if p.client != nil {
		p.client.Close()
	}
}
