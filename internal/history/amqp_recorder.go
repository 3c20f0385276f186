// internal/history/amqp_recorder.go
package history

import (
	"context"
	"encoding/json"

	"github.com/streadway/amqp"

	"github.com/overlaypush/broadcast-backend/internal/model"
)

// QueueName is the durable queue trigger records travel through on their way
// to the reporting store. cmd/worker consumes it.
const QueueName = "campaign_history"

// AMQPRecorder publishes trigger records to RabbitMQ instead of writing them
// directly, so the reporting side can be scaled and restarted independently
// of the delivery engine.
type AMQPRecorder struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAMQPRecorder(url string) (*AMQPRecorder, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPRecorder{conn: conn, channel: ch}, nil
}

func (r *AMQPRecorder) Append(ctx context.Context, rec model.TriggerRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.channel.Publish("", QueueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (r *AMQPRecorder) Close() error {
	r.channel.Close()
	return r.conn.Close()
}

var _ Appender = (*AMQPRecorder)(nil)
