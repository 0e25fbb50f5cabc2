// Package mq публикует и читает события жизненного цикла задач через RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление обменника и очередей наблюдателей
//   - publisher.go  — публикация событий job.*
//   - consumer.go   — подписка на события (cronctl watch)
//
// Обменник cronkeeper.jobs (topic), routing key совпадает с типом события:
// job.created, job.updated, job.deleted, job.enabled, job.disabled, job.imported.
package mq
