package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeTasks   Exchange = "runner.tasks"
	ExchangeResults Exchange = "runner.results"
	ExchangeDLQ     Exchange = "runner.dlq"
)

// Queues — имена очередей.
const (
	QueueTasksDispatch    Queue = "tasks.dispatch"
	QueueResultsCompleted Queue = "results.completed"
	QueueDLQTasks         Queue = "tasks.dispatch.dlq"
)

// Routing keys.
const (
	RoutingKeyDispatch  RoutingKey = "dispatch"
	RoutingKeyCompleted RoutingKey = "completed"
	RoutingKeyDLQTasks  RoutingKey = "tasks"
)

// SetupTopology declares every exchange and queue the Runner's task
// intake needs, and binds them.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeTasks, "direct"},
		{ExchangeResults, "direct"},
		{ExchangeDLQ, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	// tasks.dispatch dead-letters to the DLQ whenever a delivery is nacked
	// without requeue (the dispatcher, not this module, owns retry_count).
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQTasks),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		{QueueTasksDispatch, dlqArgs},
		{QueueResultsCompleted, nil},
		{QueueDLQTasks, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueTasksDispatch, RoutingKeyDispatch, ExchangeTasks},
		{QueueResultsCompleted, RoutingKeyCompleted, ExchangeResults},
		{QueueDLQTasks, RoutingKeyDLQTasks, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// TopologyInfo returns a description of the topology for startup logging.
func TopologyInfo() string {
	return `
  Runner RabbitMQ Topology:

    runner.tasks (direct)
    └── tasks.dispatch [routing: dispatch]
            Consumer: internal/dispatch
            DLQ: tasks.dispatch.dlq

    runner.results (direct)
    └── results.completed [routing: completed]
            Consumer: dispatcher (external)

    runner.dlq (direct)
    └── tasks.dispatch.dlq [routing: tasks]
            Manual processing
  `
}
