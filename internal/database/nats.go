package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// ConnectNATS dials the NATS server used for judge dispatch and result delivery.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	if url == "" {
		return nil, fmt.Errorf("nats url must not be empty")
	}

	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to nats: %w", err)
	}

	return conn, nil
}

// EnsureJudgeStream makes sure the JetStream stream backing the judge queue exists.
// The duplicate window bounds how long a resend of the same submission id is collapsed.
func EnsureJudgeStream(conn *nats.Conn, stream, subject string, duplicates time.Duration) (nats.JetStreamContext, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to open jetstream context: %w", err)
	}

	if _, err := js.StreamInfo(stream); err == nil {
		return js, nil
	} else if !errors.Is(err, nats.ErrStreamNotFound) {
		return nil, fmt.Errorf("failed to inspect stream %s: %w", stream, err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:       stream,
		Subjects:   []string{subject},
		Retention:  nats.WorkQueuePolicy,
		Storage:    nats.FileStorage,
		Duplicates: duplicates,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create stream %s: %w", stream, err)
	}

	return js, nil
}
