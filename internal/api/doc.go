// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go        — Handler с DI (сервис задач, logger)
//   - routes.go         — регистрация маршрутов
//   - middleware.go     — middleware (recovery, logging, metrics)
//   - response.go       — унифицированные JSON-ответы и обработка ошибок
//   - dto.go            — Data Transfer Objects (request/response)
//   - job_handler.go    — обработчики для /jobs
//   - system_handler.go — живой crontab и проверка выражений
//
// Изменения задач идут только через jobs.Service.
package api
