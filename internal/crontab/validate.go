package crontab

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser — пять полей, шесть с секундами впереди или дескриптор (@daily).
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateExpression проверяет cron-выражение, ничего не записывая в crontab.
func ValidateExpression(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return fmt.Errorf("invalid cron expression: empty")
	}
	// Переводы строк сломали бы формат таблицы
	if strings.ContainsAny(expr, "\n\r#") {
		return fmt.Errorf("invalid cron expression %q: unexpected characters", expr)
	}
	// В таблице дескриптор занимает одно поле, поэтому "@every 5m" не подходит
	if strings.HasPrefix(expr, "@") && strings.ContainsAny(expr, " \t") {
		return fmt.Errorf("invalid cron expression %q: descriptor must be a single word", expr)
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// NextRun вычисляет следующее время запуска после from.
func NextRun(expr string, from time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return schedule.Next(from), nil
}
