package judge

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/klauspost/compress/zstd"
)

// ContentEncoding is advertised on every SQS task message.
const ContentEncoding = "zstd+base64"

// SQSSender is the subset of the SQS client used for dispatch.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSEngine enqueues tasks on an SQS queue as zstd compressed, base64 encoded JSON.
type SQSEngine struct {
	client   SQSSender
	queueURL string
	fifo     bool
	encoder  *zstd.Encoder
}

// NewSQSEngine builds an engine sending to queueURL. FIFO queues are
// detected from the ".fifo" suffix.
func NewSQSEngine(client SQSSender, queueURL string) (*SQSEngine, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}

	return &SQSEngine{
		client:   client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
		encoder:  encoder,
	}, nil
}

// Name implements Engine.
func (e *SQSEngine) Name() string { return "sqs" }

// Judge sends the task. On FIFO queues the submission id is the
// deduplication id and tasks of one problem share a message group.
func (e *SQSEngine) Judge(ctx context.Context, task Task) error {
	payload, err := encodeTask(task)
	if err != nil {
		return fmt.Errorf("encode judge task: %w", err)
	}

	compressed := e.encoder.EncodeAll(payload, make([]byte, 0, len(payload)))
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(e.queueURL),
		MessageBody: aws.String(base64.StdEncoding.EncodeToString(compressed)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"content-encoding": {
				DataType:    aws.String("String"),
				StringValue: aws.String(ContentEncoding),
			},
		},
	}
	if e.fifo {
		input.MessageGroupId = aws.String(strconv.FormatUint(uint64(task.ProblemID), 10))
		input.MessageDeduplicationId = aws.String(task.SubmissionID)
	}

	if _, err := e.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("failed to send judge task %s to queue: %w", task.SubmissionID, err)
	}

	return nil
}

// Close releases the encoder.
func (e *SQSEngine) Close() error {
	return e.encoder.Close()
}

// DecodeSQSBody reverses the message body encoding used by SQSEngine.
func DecodeSQSBody(body string) (Task, error) {
	compressed, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return Task{}, fmt.Errorf("decode base64 body: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return Task{}, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer decoder.Close()

	raw, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return Task{}, fmt.Errorf("decompress body: %w", err)
	}

	return decodeTask(raw)
}
