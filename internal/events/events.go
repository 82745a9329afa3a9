// Package events publishes alert lifecycle events to Kafka for downstream
// consumers such as incident tooling and the reporting warehouse.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"safety-monitor-backend/config"
	"safety-monitor-backend/internal/logx"
	"safety-monitor-backend/internal/metrics"
	"safety-monitor-backend/internal/model"
)

const (
	TopicAlerts = "alerts"

	TypeAlertCreated       = "alert.created"
	TypeAlertStatusChanged = "alert.status_changed"

	AggregateAlert = "alert"
)

// Envelope wraps every event on the wire.
type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

// StatusChange is the payload of alert.status_changed.
type StatusChange struct {
	Alert model.Alert       `json:"alert"`
	From  model.AlertStatus `json:"from"`
	To    model.AlertStatus `json:"to"`
}

// NewEnvelope marshals payload into a fresh envelope for one alert.
func NewEnvelope(eventType string, alertID int64, payload any, now time.Time) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.New(),
		OccurredAt:    now.UTC(),
		AggregateType: AggregateAlert,
		AggregateID:   strconv.FormatInt(alertID, 10),
		EventType:     eventType,
		Payload:       raw,
	}, nil
}

// MessageWriter is the part of kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes alert events to one topic. Writes happen on a background
// goroutine so notifier calls never wait on the brokers.
type Publisher struct {
	writer  MessageWriter
	topic   string
	queue   chan kafka.Message
	timeout time.Duration
	log     *slog.Logger
	now     func() time.Time
	done    chan struct{}
}

// NewWriter builds the Kafka writer for cfg.
func NewWriter(cfg config.KafkaConfig) (*kafka.Writer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		BatchTimeout: 50 * time.Millisecond,
		Transport: &kafka.Transport{
			ClientID: cfg.ClientID,
		},
	}, nil
}

func NewPublisher(w MessageWriter, topic string, log *slog.Logger) *Publisher {
	if topic == "" {
		topic = TopicAlerts
	}
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{
		writer:  w,
		topic:   topic,
		queue:   make(chan kafka.Message, 256),
		timeout: 10 * time.Second,
		log:     log,
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

// Run drains the queue until ctx ends, then flushes what is left and closes the writer.
func (p *Publisher) Run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case msg := <-p.queue:
			p.write(msg)
		case <-ctx.Done():
			for {
				select {
				case msg := <-p.queue:
					p.write(msg)
				default:
					if err := p.writer.Close(); err != nil {
						p.log.Warn("kafka_close_failed", logx.Err(err))
					}
					return
				}
			}
		}
	}
}

// Done is closed once Run has flushed and returned.
func (p *Publisher) Done() <-chan struct{} {
	return p.done
}

func (p *Publisher) write(msg kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("kafka_publish_failed", slog.String("key", string(msg.Key)), logx.Err(err))
	}
}

func (p *Publisher) enqueue(ctx context.Context, eventType string, alertID int64, payload any) {
	env, err := NewEnvelope(eventType, alertID, payload, p.now())
	if err != nil {
		logx.FromContext(ctx).Error("event_marshal_failed", slog.String("event_type", eventType), logx.Err(err))
		return
	}
	value, err := json.Marshal(env)
	if err != nil {
		logx.FromContext(ctx).Error("event_marshal_failed", slog.String("event_type", eventType), logx.Err(err))
		return
	}
	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(env.AggregateID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "event_id", Value: []byte(env.EventID.String())},
		},
		Time: env.OccurredAt,
	}
	select {
	case p.queue <- msg:
	default:
		metrics.IncNotificationDropped("kafka")
		logx.FromContext(ctx).Warn("event_queue_full", slog.Int64("alert_id", alertID))
	}
}

func (p *Publisher) AlertCreated(ctx context.Context, alert model.Alert) {
	p.enqueue(ctx, TypeAlertCreated, alert.ID, alert)
}

func (p *Publisher) AlertStatusChanged(ctx context.Context, alert model.Alert, from model.AlertStatus) {
	p.enqueue(ctx, TypeAlertStatusChanged, alert.ID, StatusChange{Alert: alert, From: from, To: alert.Status})
}
