// Package cli реализует инструмент командной строки cronctl.
//
// # Обзор
//
// cronctl — клиент cronkeeper API. Команды job и system работают через HTTP
// и не импортируют серверные пакеты; watch подписывается на события
// задач напрямую в RabbitMQ.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для API. Инкапсулирует запросы, разбор ответов
// (DataResponse, ListResponse, ErrorResponse) и ошибки (*APIError).
//
//	client := cli.NewClient("http://localhost:8000")
//	jobs, total, err := client.ListJobs(cli.ListJobsOpts{})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: cronctl job list --json | jq .
//
// ## Commands
//
//   - job: list, show, create, update, delete, enable, disable
//   - system: list, validate
//   - watch
//
// Задачу можно указать по UUID или по имени.
// Фабричные функции (NewJobCmd и т.д.) принимают clientFn и outputFn —
// замыкания, создающие Client и Output после парсинга PersistentFlags.
package cli
