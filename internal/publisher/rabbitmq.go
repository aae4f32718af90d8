// Package publisher delivers scheduling decisions to the downstream
// notification consumer over RabbitMQ.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/roimaishar/newser/internal/domain"
)

type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		cfg.QueueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		cfg.RoutingKey,
		cfg.Exchange,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

// StoryPayload is one item as delivered to the consumer.
type StoryPayload struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	Summary     string    `json:"summary,omitempty"`
}

// DecisionMessage is the wire form of one notify-now decision. The analysis
// fields are enrichment hints only; Urgency is authoritative.
type DecisionMessage struct {
	Urgency         string         `json:"urgency"`
	Window          string         `json:"window"`
	StoryCap        int            `json:"story_cap"`
	SinceLast       string         `json:"since_last,omitempty"`
	Reasoning       string         `json:"reasoning"`
	UrgencyHint     string         `json:"urgency_hint,omitempty"`
	AnalysisSummary string         `json:"analysis_summary,omitempty"`
	Stories         []StoryPayload `json:"stories"`
	Timestamp       time.Time      `json:"timestamp"`
}

// Deliver publishes the decision, its capped story payload and any analysis
// enrichment.
func (r *RabbitMQ) Deliver(ctx context.Context, decision domain.Decision, items []domain.Item, analysis *domain.Analysis) error {
	stories := make([]StoryPayload, 0, len(items))
	for _, item := range items {
		story := StoryPayload{
			Title:       item.Title,
			Link:        item.Link,
			Source:      item.Source,
			PublishedAt: item.PublishedAt,
		}
		if item.Summary != nil {
			story.Summary = *item.Summary
		}
		stories = append(stories, story)
	}

	msg := DecisionMessage{
		Urgency:   decision.Urgency.String(),
		Window:    decision.Window.String(),
		StoryCap:  decision.StoryCap,
		SinceLast: decision.SinceLast,
		Reasoning: decision.Reasoning,
		Stories:   stories,
		Timestamp: time.Now().UTC(),
	}
	if analysis != nil {
		msg.UrgencyHint = analysis.UrgencyHint
		msg.AnalysisSummary = analysis.Summary
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("delivered decision",
		"urgency", msg.Urgency,
		"stories", len(stories),
	)

	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
