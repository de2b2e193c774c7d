package queue

import (
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const amqpMaxRetries = 3

// AMQPQueue publishes and consumes dispatch messages over RabbitMQ. Queues
// are durable so start requests survive broker and worker restarts.
type AMQPQueue struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *zap.Logger
}

func NewAMQPQueue(url string, logger *zap.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &AMQPQueue{conn: conn, ch: ch, logger: logger}, nil
}

func (q *AMQPQueue) Close() {
	q.ch.Close()
	q.conn.Close()
}

func (q *AMQPQueue) declare(topic string) (amqp.Queue, error) {
	return q.ch.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
}

func (q *AMQPQueue) Publish(topic string, payload []byte) error {
	return q.publish(topic, payload, 0)
}

func (q *AMQPQueue) publish(topic string, payload []byte, retries int) error {
	queue, err := q.declare(topic)
	if err != nil {
		return err
	}
	var headers amqp.Table
	if retries > 0 {
		headers = amqp.Table{"x-retry-count": int32(retries)}
	}
	return q.ch.Publish(
		"",
		queue.Name,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      headers,
			Body:         payload,
		},
	)
}

// retryCount reads the x-retry-count header. Brokers and clients disagree on
// the integer width, so every width we could get back is accepted.
func retryCount(headers amqp.Table) int {
	switch v := headers["x-retry-count"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// Subscribe consumes the topic with manual acks. A failed handler gets the
// message republished with x-retry-count incremented; a plain Nack requeue
// would keep the original headers and never advance the count. Once the count
// reaches amqpMaxRetries the message is dropped.
func (q *AMQPQueue) Subscribe(topic string, handler func(payload []byte) error) error {
	queue, err := q.declare(topic)
	if err != nil {
		return err
	}

	msgs, err := q.ch.Consume(
		queue.Name,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	go func() {
		for d := range msgs {
			if err := handler(d.Body); err != nil {
				retries := retryCount(d.Headers)
				if retries < amqpMaxRetries {
					q.logger.Warn("message handler failed, republishing",
						zap.String("topic", topic),
						zap.Int("retry", retries+1),
						zap.Error(err),
					)
					if pubErr := q.publish(topic, d.Body, retries+1); pubErr != nil {
						q.logger.Error("republish failed, requeueing original",
							zap.String("topic", topic),
							zap.Error(pubErr),
						)
						d.Nack(false, true)
						continue
					}
				} else {
					q.logger.Error("message permanently failed, dropping",
						zap.String("topic", topic),
						zap.Int("retries", retries),
						zap.Error(err),
					)
				}
			}
			d.Ack(false)
		}
	}()

	return nil
}
