// Package events publishes task lifecycle events for downstream consumers.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"neuroassess/common/utils"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// TaskCompleted is emitted after the engine accepted a completion.
type TaskCompleted struct {
	EventID           string    `json:"eventId"`
	ProcessID         string    `json:"processId"`
	ProcessInstanceID string    `json:"processInstanceId"`
	TaskID            string    `json:"taskId"`
	TaskName          string    `json:"taskName"`
	CompletedBy       string    `json:"completedBy"`
	Degraded          bool      `json:"degraded"`
	At                time.Time `json:"at"`
}

// Publisher sends events. Implementations must be safe for concurrent use.
type Publisher interface {
	PublishTaskCompleted(ctx context.Context, ev TaskCompleted) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishTaskCompleted(context.Context, TaskCompleted) error { return nil }
func (NopPublisher) Close() error                                              { return nil }

// NatsPublisher publishes JSON events on a NATS subject.
type NatsPublisher struct {
	conn    *nats.Conn
	subject string

	closeOnce sync.Once
}

// NewNatsPublisher connects to url and publishes on subject.
func NewNatsPublisher(url, subject string) (*NatsPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("neuroassess"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NatsPublisher{conn: conn, subject: subject}, nil
}

// PublishTaskCompleted fills EventID and At when unset.
func (p *NatsPublisher) PublishTaskCompleted(ctx context.Context, ev TaskCompleted) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	data, err := utils.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := nats.NewMsg(p.subject)
	msg.Header.Set(nats.MsgIdHdr, ev.EventID)
	msg.Data = data
	return p.conn.PublishMsg(msg)
}

// Close drains pending messages and closes the connection.
func (p *NatsPublisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.conn.Drain()
	})
	return err
}

// RecordingPublisher keeps events in memory.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []TaskCompleted
}

func (r *RecordingPublisher) PublishTaskCompleted(_ context.Context, ev TaskCompleted) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *RecordingPublisher) Close() error { return nil }

// Events returns a copy of the recorded events.
func (r *RecordingPublisher) Events() []TaskCompleted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TaskCompleted(nil), r.events...)
}
