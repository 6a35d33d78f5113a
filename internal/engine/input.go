package engine

import (
	"strings"
	"sync"

	"github.com/annel0/voxel-sandbox/internal/vec"
	"github.com/annel0/voxel-sandbox/internal/world/block"
)

// Hotkey - команда управления сохранением
type Hotkey uint8

const (
	HotkeyNone  Hotkey = iota
	HotkeySave         // K: принудительное сохранение
	HotkeyLoad         // L: загрузка сохранения
	HotkeyReset        // R: удалить сохранение, сгенерировать мир заново и сохранить
)

// String возвращает имя горячей клавиши
func (h Hotkey) String() string {
	switch h {
	case HotkeySave:
		return "save"
	case HotkeyLoad:
		return "load"
	case HotkeyReset:
		return "reset"
	default:
		return "none"
	}
}

// ParseHotkey принимает как имена команд, так и коды клавиш (K, L, R)
func ParseHotkey(s string) (Hotkey, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "save", "k", "keyk":
		return HotkeySave, true
	case "load", "l", "keyl":
		return HotkeyLoad, true
	case "reset", "r", "keyr":
		return HotkeyReset, true
	}
	return HotkeyNone, false
}

// InputFrame - состояние ввода на один шаг симуляции.
//
// Break и Place - фронты: одно нажатие даёт ровно одно действие.
// Остальные флаги отражают удерживаемые клавиши.
type InputFrame struct {
	AimOrigin    vec.Vec3Float
	HasAimOrigin bool // false - луч выпускается из глаз игрока
	AimDirection vec.Vec3Float

	Forward bool
	Back    bool
	Left    bool
	Right   bool
	Jump    bool

	Break     bool
	Place     bool
	PlaceType block.Type // Air - тип по умолчанию

	Hotkeys []Hotkey
}

// InputSource поставляет ввод раз в шаг
type InputSource interface {
	Poll() InputFrame
}

// InputLatch хранит последнее состояние ввода от внешнего клиента.
// Фронты (Break, Place, горячие клавиши) копятся до ближайшего Poll,
// поэтому короткое нажатие между двумя шагами не теряется.
type InputLatch struct {
	mu      sync.Mutex
	frame   InputFrame
	brk     bool
	place   bool
	hotkeys []Hotkey
}

// NewInputLatch создаёт пустую защёлку
func NewInputLatch() *InputLatch {
	return &InputLatch{}
}

var _ InputSource = (*InputLatch)(nil)

// Update заменяет удерживаемое состояние и запоминает фронты
func (l *InputLatch) Update(frame InputFrame) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if frame.Break {
		l.brk = true
	}
	if frame.Place {
		l.place = true
	}
	l.hotkeys = append(l.hotkeys, frame.Hotkeys...)

	frame.Break = false
	frame.Place = false
	frame.Hotkeys = nil
	l.frame = frame
}

// PressHotkey ставит горячую клавишу в очередь
func (l *InputLatch) PressHotkey(h Hotkey) {
	if h == HotkeyNone {
		return
	}
	l.mu.Lock()
	l.hotkeys = append(l.hotkeys, h)
	l.mu.Unlock()
}

// Poll возвращает текущий кадр и сбрасывает накопленные фронты
func (l *InputLatch) Poll() InputFrame {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := l.frame
	out.Break = l.brk
	out.Place = l.place
	out.Hotkeys = l.hotkeys

	l.brk = false
	l.place = false
	l.hotkeys = nil
	return out
}

// StaticInput всегда возвращает один и тот же кадр без фронтов
type StaticInput struct {
	Frame InputFrame
}

// Poll реализует InputSource
func (s StaticInput) Poll() InputFrame {
	f := s.Frame
	f.Break = false
	f.Place = false
	f.Hotkeys = nil
	return f
}
