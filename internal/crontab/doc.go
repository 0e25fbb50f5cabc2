// Package crontab реализует адаптер к системному crontab.
//
// Структура:
//   - table.go     — разбор и сериализация таблицы crontab
//   - transport.go — Transport и MemoryTransport
//   - local.go     — LocalTransport (crontab -l / crontab -)
//   - remote.go    — RemoteTransport (те же команды через SSH)
//   - validate.go  — проверка cron-выражений
//   - scheduler.go — Scheduler: add/remove/enable/disable/list
//
// Формат управляемой строки:
//
//	0 2 * * * /srv/scripts/nightly-backup.sh # nightly-backup
//	# 0 2 * * * /srv/scripts/nightly-backup.sh # nightly-backup   (выключена)
//
// Все остальные строки таблицы сохраняются без изменений.
package crontab
