package lines

import (
	"sync"

	"github.com/arzzra/call_control/pkg/call"
)

// Проверка соответствия интерфейсу во время компиляции
var _ ActiveCallRegistry = (*MemoryRegistry)(nil)

// MemoryRegistry реестр активных вызовов в памяти процесса.
// Подходит для одиночного софтфона и тестов; распределенные
// развертывания внедряют собственную реализацию ActiveCallRegistry.
type MemoryRegistry struct {
	mu    sync.RWMutex
	calls map[string]*call.Session
}

// NewMemoryRegistry создает пустой реестр
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{calls: make(map[string]*call.Session)}
}

// AddActiveCall регистрирует сессию по ее идентификатору
func (r *MemoryRegistry) AddActiveCall(s *call.Session) {
	if s == nil || s.ID() == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[s.ID()] = s
}

// RemoveActiveCall удаляет сессию из реестра
func (r *MemoryRegistry) RemoveActiveCall(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.calls, id)
}

// GetCall возвращает сессию по идентификатору
func (r *MemoryRegistry) GetCall(id string) (*call.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.calls[id]
	return s, ok
}

// Count количество зарегистрированных вызовов
func (r *MemoryRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}
