package judge

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/noah-isme/gema-judge/internal/middleware"
)

// JetStreamPublisher is the subset of nats.JetStreamContext used for dispatch.
type JetStreamPublisher interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSEngine enqueues tasks on a JetStream work queue.
type NATSEngine struct {
	js      JetStreamPublisher
	subject string
}

// NewNATSEngine builds an engine publishing to subject.
func NewNATSEngine(js JetStreamPublisher, subject string) *NATSEngine {
	return &NATSEngine{js: js, subject: subject}
}

// Name implements Engine.
func (e *NATSEngine) Name() string { return "nats" }

// Judge publishes the task and waits for the stream acknowledgement. The
// submission id is sent as Nats-Msg-Id, so a republish inside the stream's
// duplicate window is acknowledged without creating a second message.
func (e *NATSEngine) Judge(ctx context.Context, task Task) error {
	payload, err := encodeTask(task)
	if err != nil {
		return fmt.Errorf("encode judge task: %w", err)
	}

	msg := nats.NewMsg(e.subject)
	msg.Data = payload
	if id := middleware.CorrelationIDFromContext(ctx); id != "" {
		msg.Header.Set(CorrelationHeader, id)
	}

	ack, err := e.js.PublishMsg(msg, nats.MsgId(task.SubmissionID), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("publish judge task %s: %w", task.SubmissionID, err)
	}
	if ack == nil {
		return fmt.Errorf("publish judge task %s: %w", task.SubmissionID, ErrRejected)
	}

	return nil
}
