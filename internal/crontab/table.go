package crontab

import (
	"strings"

	"github.com/shaiso/cronkeeper/internal/domain"
)

const (
	// tagSeparator отделяет команду от тега.
	tagSeparator = " # "
	// disabledPrefix — префикс выключенной строки.
	disabledPrefix = "# "
)

// line — одна строка таблицы.
// Для управляемых строк entry != nil, raw используется только для прочих.
type line struct {
	raw   string
	entry *domain.Entry
}

// Table — содержимое crontab в памяти.
type Table struct {
	lines []line
}

// Parse разбирает содержимое crontab.
func Parse(data []byte) *Table {
	t := &Table{}

	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return t
	}

	for _, raw := range strings.Split(text, "\n") {
		raw = strings.TrimSuffix(raw, "\r")
		t.lines = append(t.lines, line{raw: raw, entry: parseLine(raw)})
	}

	return t
}

// parseLine возвращает Entry, если строка — задача (включённая или выключенная).
func parseLine(raw string) *domain.Entry {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	enabled := true
	if strings.HasPrefix(s, "#") {
		// Закомментированная строка — задача, только если у неё есть тег
		s = strings.TrimSpace(strings.TrimPrefix(s, "#"))
		if !strings.Contains(s, tagSeparator) {
			return nil
		}
		enabled = false
	}

	body, tag := s, ""
	if i := strings.LastIndex(s, tagSeparator); i >= 0 {
		body, tag = strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+len(tagSeparator):])
	}

	fields := strings.Fields(body)
	n := scheduleFieldCount(fields)
	if n == 0 || len(fields) <= n {
		return nil
	}

	expression := strings.Join(fields[:n], " ")
	// Комментарий считается выключенной задачей, только если расписание валидно
	if !enabled && ValidateExpression(expression) != nil {
		return nil
	}

	// Команду берём из исходного текста, чтобы не терять пробелы внутри неё
	command := body
	for i := 0; i < n; i++ {
		command = strings.TrimLeft(command, " \t")
		command = command[len(fields[i]):]
	}
	command = strings.TrimSpace(command)

	return &domain.Entry{
		Name:       tag,
		Expression: expression,
		Command:    command,
		Enabled:    enabled,
	}
}

// scheduleFieldCount определяет количество полей расписания.
// 0 — строка не похожа на задачу (например, присваивание переменной).
func scheduleFieldCount(fields []string) int {
	if len(fields) == 0 {
		return 0
	}
	if strings.HasPrefix(fields[0], "@") {
		return 1
	}
	if len(fields) < 5 {
		return 0
	}
	for _, f := range fields[:5] {
		if !isCronField(f) {
			return 0
		}
	}
	if len(fields) > 6 && isNumericField(fields[5]) {
		return 6
	}
	return 5
}

// isCronField — символы, допустимые в поле расписания.
// Из букв допустимы только имена месяцев и дней (JAN, MON).
func isCronField(f string) bool {
	if f == "" || strings.Contains(f, "=") {
		return false
	}
	word := ""
	for _, r := range f + "," {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
			word += string(r)
			continue
		case r >= '0' && r <= '9':
		case r == '*' || r == '/' || r == ',' || r == '-' || r == '?':
		default:
			return false
		}
		if word != "" && !cronNames[strings.ToUpper(word)] {
			return false
		}
		word = ""
	}
	return true
}

var cronNames = map[string]bool{
	"JAN": true, "FEB": true, "MAR": true, "APR": true, "MAY": true, "JUN": true,
	"JUL": true, "AUG": true, "SEP": true, "OCT": true, "NOV": true, "DEC": true,
	"SUN": true, "MON": true, "TUE": true, "WED": true, "THU": true, "FRI": true, "SAT": true,
}

// isNumericField — шестое поле (секунды): без букв и не путь к файлу.
func isNumericField(f string) bool {
	if f == "" || strings.HasPrefix(f, "/") {
		return false
	}
	for _, r := range f {
		if !(r >= '0' && r <= '9') && !strings.ContainsRune("*/,-?", r) {
			return false
		}
	}
	return true
}

// formatEntry сериализует управляемую строку.
func formatEntry(e domain.Entry) string {
	s := e.Expression + " " + e.Command
	if e.Name != "" {
		s += tagSeparator + e.Name
	}
	if !e.Enabled {
		s = disabledPrefix + s
	}
	return s
}

// Entries возвращает все задачи таблицы в порядке следования.
func (t *Table) Entries() []domain.Entry {
	entries := make([]domain.Entry, 0, len(t.lines))
	for _, l := range t.lines {
		if l.entry != nil {
			entries = append(entries, *l.entry)
		}
	}
	return entries
}

// Find возвращает задачи с тегом name.
func (t *Table) Find(name string) []domain.Entry {
	var found []domain.Entry
	for _, l := range t.lines {
		if l.entry != nil && l.entry.Name == name {
			found = append(found, *l.entry)
		}
	}
	return found
}

// Append добавляет задачу в конец таблицы.
func (t *Table) Append(e domain.Entry) {
	entry := e
	t.lines = append(t.lines, line{raw: formatEntry(e), entry: &entry})
}

// Remove удаляет все задачи с тегом name и возвращает их количество.
func (t *Table) Remove(name string) int {
	kept := t.lines[:0]
	removed := 0
	for _, l := range t.lines {
		if l.entry != nil && l.entry.Name == name {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	t.lines = kept
	return removed
}

// SetEnabled включает или выключает задачи с тегом name.
// Возвращает количество строк, которые действительно изменились.
func (t *Table) SetEnabled(name string, enabled bool) int {
	changed := 0
	for i := range t.lines {
		e := t.lines[i].entry
		if e == nil || e.Name != name || e.Enabled == enabled {
			continue
		}
		e.Enabled = enabled
		t.lines[i].raw = formatEntry(*e)
		changed++
	}
	return changed
}

// Bytes сериализует таблицу. Результат всегда заканчивается переводом строки.
func (t *Table) Bytes() []byte {
	if len(t.lines) == 0 {
		return nil
	}

	var b strings.Builder
	for _, l := range t.lines {
		b.WriteString(l.raw)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
