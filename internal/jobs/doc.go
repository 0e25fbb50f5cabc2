// Package jobs связывает реестр задач, хранилище скриптов и crontab.
//
// Service — единственная точка, через которую API меняет задачи.
// Порядок операций:
//
//	Create:  реестр → скрипт → crontab; при сбое crontab запись удаляется
//	Update:  реестр → скрипт → crontab; при сбое восстанавливается прежняя версия
//	Delete:  crontab → скрипт → реестр
//	Enable/Disable: crontab → реестр
//
// Сбой crontab всегда возвращается как ErrSchedulerFailure.
package jobs
