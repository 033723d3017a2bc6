package judge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/internal/middleware"
	"github.com/noah-isme/gema-judge/internal/observability"
)

// ResultQueue is the queue group shared by all result consumers.
const ResultQueue = "gema-judge-results"

// CorrelationHeader carries the request correlation id on NATS messages.
const CorrelationHeader = middleware.CorrelationHeader

// ResultHandler applies one judge verdict.
type ResultHandler func(ctx context.Context, result dto.JudgeResult) error

// ResultSubscriber is the subset of *nats.Conn used by the consumer.
type ResultSubscriber interface {
	QueueSubscribe(subj, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// ResultConsumer feeds judge verdicts published on NATS into a handler.
type ResultConsumer struct {
	conn      ResultSubscriber
	subject   string
	handler   ResultHandler
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewResultConsumer constructs a consumer for subject.
func NewResultConsumer(conn ResultSubscriber, subject string, handler ResultHandler, validate *validator.Validate, logger zerolog.Logger) *ResultConsumer {
	return &ResultConsumer{
		conn:      conn,
		subject:   subject,
		handler:   handler,
		validator: validate,
		logger:    logger.With().Str("component", "judge_result_consumer").Logger(),
	}
}

// Start subscribes and drains the subscription once ctx is cancelled.
func (c *ResultConsumer) Start(ctx context.Context) error {
	sub, err := c.conn.QueueSubscribe(c.subject, ResultQueue, func(msg *nats.Msg) {
		msgCtx := middleware.ContextWithCorrelation(ctx, msg.Header.Get(CorrelationHeader))
		c.Handle(msgCtx, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe to judge results: %w", err)
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			c.logger.Warn().Err(err).Msg("failed to drain judge result subscription")
		}
	}()

	return nil
}

// Handle decodes and applies one result payload.
func (c *ResultConsumer) Handle(ctx context.Context, payload []byte) {
	var result dto.JudgeResult
	if err := json.Unmarshal(payload, &result); err != nil {
		observability.JudgeResults().WithLabelValues("invalid").Inc()
		c.logger.Warn().Err(err).Msg("invalid judge result payload")
		return
	}
	if err := c.validator.Struct(result); err != nil {
		observability.JudgeResults().WithLabelValues("invalid").Inc()
		c.logger.Warn().Err(err).Str("submission_id", result.SubmissionID).Msg("judge result failed validation")
		return
	}

	if err := c.handler(ctx, result); err != nil {
		observability.JudgeResults().WithLabelValues("error").Inc()
		c.logger.Error().Err(err).Str("submission_id", result.SubmissionID).Msg("failed to apply judge result")
		return
	}

	observability.JudgeResults().WithLabelValues("applied").Inc()
}
