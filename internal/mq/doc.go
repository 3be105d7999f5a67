// Package mq предоставляет интеграцию с RabbitMQ для приёма задач
// Runner'ом и публикации результатов их выполнения.
//
// Включает:
//   - connection.go — управление подключением с auto-reconnect
//   - publisher.go  — публикация сообщений в exchange (TaskDispatch, TaskResult)
//   - consumer.go   — потребление сообщений из очередей
//   - topology.go   — декларация exchanges, queues и их биндингов
package mq
