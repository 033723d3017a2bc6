package judge

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrRejected indicates the judge transport refused a task.
var ErrRejected = errors.New("judge rejected task")

// Task identifies one submission to judge. SubmissionID doubles as the
// idempotency key on every transport.
type Task struct {
	SubmissionID string `json:"submission_id"`
	ProblemID    uint   `json:"problem_id"`
}

// Engine hands a task to the judge. A nil error means the judge accepted
// the task, either by judging it synchronously or by durably enqueuing it.
type Engine interface {
	Name() string
	Judge(ctx context.Context, task Task) error
}

// EngineFunc adapts a function into an Engine.
type EngineFunc func(ctx context.Context, task Task) error

// Name implements Engine.
func (f EngineFunc) Name() string { return "func" }

// Judge implements Engine.
func (f EngineFunc) Judge(ctx context.Context, task Task) error {
	return f(ctx, task)
}

func encodeTask(task Task) ([]byte, error) {
	return json.Marshal(task)
}

func decodeTask(raw []byte) (Task, error) {
	var task Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return Task{}, err
	}
	return task, nil
}
