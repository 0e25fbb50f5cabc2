package crontab

import (
	"context"
	"errors"
	"sync"
)

// Transport — доступ к сырому содержимому crontab.
//
// Реализации: LocalTransport, RemoteTransport, MemoryTransport.
// Каждый вызов Read читает таблицу заново, кэширования нет:
// crontab могут менять и другие процессы.
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	String() string
}

// ErrTransportClosed — MemoryTransport переведён в режим отказа.
var ErrTransportClosed = errors.New("crontab transport unavailable")

// MemoryTransport хранит таблицу в памяти процесса.
// Используется в режиме memory (ничего не пишет в систему) и в тестах.
type MemoryTransport struct {
	mu     sync.Mutex
	data   []byte
	writes int
	fail   error
}

// NewMemoryTransport создаёт MemoryTransport с начальным содержимым.
func NewMemoryTransport(initial string) *MemoryTransport {
	return &MemoryTransport{data: []byte(initial)}
}

func (m *MemoryTransport) Read(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	return append([]byte(nil), m.data...), nil
}

func (m *MemoryTransport) Write(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.data = append([]byte(nil), data...)
	m.writes++
	return nil
}

func (m *MemoryTransport) String() string { return "memory" }

// Content возвращает текущее содержимое таблицы.
func (m *MemoryTransport) Content() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.data)
}

// Writes возвращает количество записей таблицы.
func (m *MemoryTransport) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// FailWith заставляет все последующие операции возвращать err.
// nil возвращает транспорт в рабочее состояние.
func (m *MemoryTransport) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}
