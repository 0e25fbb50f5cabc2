// Package scriptstore хранит исполняемые скрипты задач.
//
// Один скрипт на задачу: <dir>/<name>.sh, первая строка — #!/bin/bash,
// дальше команда как есть. Если crontab находится на другом хосте,
// у скрипта два пути: локальный (куда пишется содержимое) и путь,
// под которым его видит хост (на него ссылается строка crontab).
// Пути отличаются только префиксом.
package scriptstore
