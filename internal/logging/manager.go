package logging

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry хранит по одному логгеру на компонент (engine, network, storage, http...)
type Registry struct {
	mu      sync.Mutex
	loggers map[string]*Logger
}

// NewRegistry создаёт пустой реестр
func NewRegistry() *Registry {
	return &Registry{loggers: make(map[string]*Logger)}
}

var components = NewRegistry()

// Get возвращает логгер компонента, создавая его при первом обращении.
// Если файл журнала открыть не удалось, компонент пишет только в консоль.
func (r *Registry) Get(component string) *Logger {
	r.mu.Lock()
	defer r.mu.Unlock()

	if logger, ok := r.loggers[component]; ok {
		return logger
	}
	logger, err := NewLogger(component)
	if err != nil {
		logger = newConsoleLogger(component, currentOptions())
		logger.Warn("Файл журнала недоступен, пишем только в консоль: %v", err)
	}
	r.loggers[component] = logger
	return logger
}

// Components возвращает имена созданных логгеров по алфавиту
func (r *Registry) Components() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.loggers))
	for name := range r.loggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close закрывает файлы всех логгеров и очищает реестр
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, logger := range r.loggers {
		if err := logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("логгер %s: %w", name, err))
		}
	}
	r.loggers = make(map[string]*Logger)
	return errors.Join(errs...)
}

// GetComponentLogger возвращает логгер компонента из общего реестра
func GetComponentLogger(component string) *Logger {
	return components.Get(component)
}

// CloseComponentLoggers закрывает логгеры общего реестра
func CloseComponentLoggers() error {
	return components.Close()
}

func GetEngineLogger() *Logger  { return GetComponentLogger("engine") }
func GetNetworkLogger() *Logger { return GetComponentLogger("network") }
func GetStorageLogger() *Logger { return GetComponentLogger("storage") }
