package queue

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TopicJobDispatch carries job ids whose dispatch should run.
const TopicJobDispatch = "job_dispatch"

// DispatchMessage is the payload published for every start/resume request.
type DispatchMessage struct {
	JobID string `json:"job_id"`
}

// Encode marshals a dispatch message for publishing.
func (m DispatchMessage) Encode() []byte {
	b, _ := json.Marshal(m)
	return b
}

// DecodeDispatch parses a dispatch message payload.
func DecodeDispatch(body []byte) (DispatchMessage, error) {
	var m DispatchMessage
	err := json.Unmarshal(body, &m)
	return m, err
}

// Queue interface
type Queue interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler func(payload []byte) error) error
}

// InMemoryQueue is an in-process queue with retry, used when no broker is
// configured. Handlers run detached, matching the fire-and-forget dispatch
// model.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload []byte) error
	logger   *zap.Logger

	maxRetries int
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(logger *zap.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]func(payload []byte) error),
		logger:     logger,
		maxRetries: 3,
	}
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload []byte) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		go q.processJob(topic, handler, payload)
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(topic string, handler func(payload []byte) error, payload []byte) {
	for attempt := 0; ; attempt++ {
		err := handler(payload)
		if err == nil {
			return // ACK
		}

		q.logger.Warn("queue handler failed",
			zap.String("topic", topic),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		if attempt >= q.maxRetries {
			q.logger.Error("queue message permanently failed",
				zap.String("topic", topic),
				zap.Int("attempts", attempt+1),
			)
			return // no requeue
		}

		// Backoff before retry
		time.Sleep(time.Duration(attempt+1) * 500 * time.Millisecond)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload []byte) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}
