// Package telemetry обеспечивает structured logging через slog:
// уровень и формат берутся из LOG_LEVEL/LOG_FORMAT, а
// WithRunID/WithTaskID/WithSpecName/WithRunnerID добавляют
// идентификаторы текущего запуска к каждой записи лога.
//
// Prometheus-метрики экспортируются отдельно, в internal/monitor и
// на /metrics в cmd/runner.
package telemetry
