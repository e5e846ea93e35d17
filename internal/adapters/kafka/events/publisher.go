// Package events publishes renewal and email confirmation events to Kafka using franz-go.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/mitoc/membership-api/internal/ports/out/events"
)

const (
	DefaultRenewalTopic      = "membership.renewals"
	DefaultConfirmationTopic = "membership.email-confirmations"
	produceTimeout           = 5 * time.Second
)

// Topics names the destination of each event kind. Empty names fall back to the defaults.
type Topics struct {
	Renewals      string
	Confirmations string
}

// Publisher implements events.Publisher and events.ConfirmationSender on a franz-go client.
// Records are keyed by participant ID so one participant's events stay ordered.
type Publisher struct {
	client *kgo.Client
	topics Topics
	logger *zap.Logger
}

// NewPublisher connects to brokers. Call Close when shutting down.
func NewPublisher(brokers []string, topics Topics, logger *zap.Logger) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if topics.Renewals == "" {
		topics.Renewals = DefaultRenewalTopic
	}
	if topics.Confirmations == "" {
		topics.Confirmations = DefaultConfirmationTopic
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topics.Renewals),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &Publisher{client: client, topics: topics, logger: logger}, nil
}

func (p *Publisher) PublishRenewal(ctx context.Context, ev events.RenewalEvent) error {
	if p == nil || p.client == nil {
		return errors.New("kafka: publisher not initialized")
	}
	rec, err := renewalRecord(p.topics.Renewals, ev)
	if err != nil {
		return err
	}
	if err := p.produce(ctx, rec); err != nil {
		p.logger.Warn("renewal event publish failed",
			zap.String("participant_id", string(ev.ParticipantID)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (p *Publisher) SendEmailConfirmation(ctx context.Context, ev events.EmailConfirmationEvent) error {
	if p == nil || p.client == nil {
		return errors.New("kafka: publisher not initialized")
	}
	rec, err := confirmationRecord(p.topics.Confirmations, ev)
	if err != nil {
		return err
	}
	if err := p.produce(ctx, rec); err != nil {
		p.logger.Warn("email confirmation publish failed",
			zap.String("participant_id", string(ev.ParticipantID)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (p *Publisher) produce(ctx context.Context, rec *kgo.Record) error {
	ctx, cancel := context.WithTimeout(ctx, produceTimeout)
	defer cancel()
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("kafka produce: %w", err)
	}
	return nil
}

// Close flushes and closes the client. Safe on a nil publisher.
func (p *Publisher) Close() {
	if p == nil || p.client == nil {
		return
	}
	p.client.Close()
}

func renewalRecord(topic string, ev events.RenewalEvent) (*kgo.Record, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode renewal event: %w", err)
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(ev.ParticipantID),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "event-type", Value: []byte("membership.renewed")},
		},
	}, nil
}

func confirmationRecord(topic string, ev events.EmailConfirmationEvent) (*kgo.Record, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode email confirmation event: %w", err)
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(ev.ParticipantID),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "event-type", Value: []byte("membership.email_confirmation_requested")},
		},
	}, nil
}
