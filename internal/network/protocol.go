package network

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/annel0/voxel-sandbox/internal/engine"
	"github.com/annel0/voxel-sandbox/internal/vec"
	"github.com/annel0/voxel-sandbox/internal/world"
	"github.com/annel0/voxel-sandbox/internal/world/block"
)

// Константы типов сообщений
const (
	// Клиент -> Сервер
	MsgTypeInput  = "input"  // Состояние ввода: луч прицела, движение, действия
	MsgTypeHotkey = "hotkey" // Сохранение / загрузка / сброс
	MsgTypeAuth   = "auth"   // Токен оператора для горячих клавиш

	// Сервер -> Клиент
	MsgTypeSnapshot      = "snapshot"       // Полное содержимое мира: при подключении и после сброса или загрузки
	MsgTypeBlock         = "block"          // Изменение одного вокселя
	MsgTypeCleared       = "cleared"        // Мир очищен
	MsgTypeHUD           = "hud"            // Снимок HUD
	MsgTypeServerMessage = "server_message" // Системное сообщение
)

// Message - конверт сетевого сообщения
type Message struct {
	Type      string          `json:"type"`           // Тип сообщения
	Timestamp int64           `json:"timestamp"`      // Unix, миллисекунды
	Data      json.RawMessage `json:"data,omitempty"` // Данные сообщения (зависят от типа)
}

// NewMessage создает новое сообщение указанного типа
func NewMessage(msgType string, data interface{}) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      dataBytes,
	}, nil
}

// encodeMessage сериализует конверт целиком
func encodeMessage(msgType string, data interface{}) ([]byte, error) {
	msg, err := NewMessage(msgType, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

// InputMessage - состояние ввода клиента
type InputMessage struct {
	Origin    *[3]float64 `json:"origin,omitempty"` // Без origin луч выходит из глаз игрока
	Direction [3]float64  `json:"direction"`
	Forward   bool        `json:"forward"`
	Back      bool        `json:"back"`
	Left      bool        `json:"left"`
	Right     bool        `json:"right"`
	Jump      bool        `json:"jump"`
	Break     bool        `json:"break"`
	Place     bool        `json:"place"`
	PlaceType string      `json:"place_type,omitempty"` // Имя или код блока
}

// Frame преобразует сообщение в кадр ввода движка
func (m *InputMessage) Frame() (engine.InputFrame, error) {
	frame := engine.InputFrame{
		AimDirection: vec.Vec3Float{X: m.Direction[0], Y: m.Direction[1], Z: m.Direction[2]},
		Forward:      m.Forward,
		Back:         m.Back,
		Left:         m.Left,
		Right:        m.Right,
		Jump:         m.Jump,
		Break:        m.Break,
		Place:        m.Place,
	}
	if m.Origin != nil {
		frame.AimOrigin = vec.Vec3Float{X: m.Origin[0], Y: m.Origin[1], Z: m.Origin[2]}
		frame.HasAimOrigin = true
	}
	if m.PlaceType != "" {
		t, err := block.Parse(m.PlaceType)
		if err != nil {
			return engine.InputFrame{}, err
		}
		frame.PlaceType = t
	}
	return frame, nil
}

// HotkeyMessage - нажатие горячей клавиши
type HotkeyMessage struct {
	Key string `json:"key"` // save | load | reset или K | L | R
}

// AuthMessage - токен, полученный через POST /api/auth/login
type AuthMessage struct {
	Token string `json:"token"`
}

// PaletteEntry описывает тип блока для рендера
type PaletteEntry struct {
	ID        uint8  `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"` // #RRGGBB
	Placeable bool   `json:"placeable"`
}

// SnapshotMessage - состояние мира целиком. Клиент заменяет им всё, что построил раньше.
type SnapshotMessage struct {
	WorldID string         `json:"world_id"`
	Player  [3]float64     `json:"player"`
	Blocks  [][4]int       `json:"blocks"` // [x, y, z, type]
	Palette []PaletteEntry `json:"palette"`
}

// BlockMessage - изменение одного вокселя
type BlockMessage struct {
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Z    int    `json:"z"`
	Type uint8  `json:"type"` // 0 - воздух
	Old  uint8  `json:"old"`
	Kind string `json:"kind"` // added | removed | replaced
}

// ServerMessage - системное сообщение клиенту
type ServerMessage struct {
	MessageType string `json:"message_type"` // info | error
	Content     string `json:"content"`
}

// Palette возвращает описание всех зарегистрированных блоков
func Palette() []PaletteEntry {
	types := block.All()
	out := make([]PaletteEntry, 0, len(types))
	for _, t := range types {
		info, _ := block.Get(t)
		out = append(out, PaletteEntry{
			ID:        uint8(t),
			Name:      info.Name,
			Color:     fmt.Sprintf("#%06X", info.Color),
			Placeable: info.Placeable,
		})
	}
	return out
}

// NewSnapshot собирает снимок мира. Вызывается из горутины симуляции.
func NewSnapshot(e *engine.Engine) SnapshotMessage {
	return newSnapshot(e.WorldID(), e.PlayerPosition(), e.Blocks())
}

func newSnapshot(worldID string, player vec.Vec3Float, entries []world.Entry) SnapshotMessage {
	blocks := make([][4]int, len(entries))
	for i, en := range entries {
		blocks[i] = [4]int{en.Pos.X, en.Pos.Y, en.Pos.Z, int(en.Type)}
	}
	return SnapshotMessage{
		WorldID: worldID,
		Player:  player.Array(),
		Blocks:  blocks,
		Palette: Palette(),
	}
}

func newBlockMessage(pos vec.Vec3, old, new block.Type) BlockMessage {
	return BlockMessage{
		X: pos.X, Y: pos.Y, Z: pos.Z,
		Type: uint8(new),
		Old:  uint8(old),
		Kind: world.KindOf(old, new).String(),
	}
}
