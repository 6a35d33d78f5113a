package block

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Type представляет тип блока. Воздух никогда не хранится явно.
type Type uint8

// Константы типов блоков (значения совпадают с форматом сохранения)
const (
	Air   Type = iota // 0
	Grass             // 1
	Dirt              // 2
	Stone             // 3
	Wood              // 4
)

// Info описывает тип блока для внешних потребителей (рендер, HUD, инструменты)
type Info struct {
	Name      string // Каноническое имя в нижнем регистре
	Color     uint32 // Базовый цвет RGB для рендера
	Placeable bool   // Может ли игрок ставить этот блок
}

var registry = map[Type]Info{
	Air:   {Name: "air"},
	Grass: {Name: "grass", Color: 0x4CAF50, Placeable: true},
	Dirt:  {Name: "dirt", Color: 0x8B5A2B, Placeable: true},
	Stone: {Name: "stone", Color: 0x888888, Placeable: true},
	Wood:  {Name: "wood", Color: 0xA47551, Placeable: true},
}

// Register добавляет (или заменяет) описание типа блока в регистре.
// Вызывать только при инициализации, регистр не защищён мьютексом.
func Register(t Type, info Info) {
	info.Name = strings.ToLower(info.Name)
	registry[t] = info
}

// Get возвращает описание для указанного типа
func Get(t Type) (Info, bool) {
	info, exists := registry[t]
	return info, exists
}

// IsValid проверяет, зарегистрирован ли тип (включая воздух)
func IsValid(t Type) bool {
	_, exists := registry[t]
	return exists
}

// IsPlaceable проверяет, может ли игрок поставить блок этого типа
func IsPlaceable(t Type) bool {
	info, exists := registry[t]
	return exists && info.Placeable
}

// String возвращает имя типа блока
func (t Type) String() string {
	if info, exists := registry[t]; exists {
		return info.Name
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// Parse разбирает имя блока ("dirt", "Stone") или его числовой код ("2")
func Parse(s string) (Type, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	for t, info := range registry {
		if info.Name == s {
			return t, nil
		}
	}

	if code, err := strconv.Atoi(s); err == nil && code >= 0 && code <= 255 {
		if t := Type(code); IsValid(t) {
			return t, nil
		}
	}

	return Air, fmt.Errorf("неизвестный тип блока %q", s)
}

// All возвращает все зарегистрированные типы по возрастанию кода
func All() []Type {
	types := make([]Type, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
