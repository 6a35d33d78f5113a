package eventbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrBusClosed возвращается при работе с закрытой шиной
var ErrBusClosed = errors.New("шина событий закрыта")

// Типы событий мира
const (
	TypeBlockChanged = "BlockChanged"
	TypeWorldCleared = "WorldCleared"
	TypeWorldSaved   = "WorldSaved"
	TypeWorldLoaded  = "WorldLoaded"
)

// payloadVersion - версия схем полезной нагрузки ниже
const payloadVersion = 1

// BlockChangedPayload - изменение одного вокселя
type BlockChangedPayload struct {
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Z    int    `json:"z"`
	Old  uint8  `json:"old"`
	New  uint8  `json:"new"`
	Kind string `json:"kind"` // added | removed | replaced
}

// WorldClearedPayload - мир очищен целиком
type WorldClearedPayload struct{}

// WorldSavedPayload - сохранение записано или поставлено в очередь
type WorldSavedPayload struct {
	Slot    string `json:"slot"`
	Blocks  int    `json:"blocks"`
	Bytes   int    `json:"bytes"`
	Trigger string `json:"trigger"` // manual | autosave | reset
}

// WorldLoadedPayload - мир загружен из сохранения или сгенерирован
type WorldLoadedPayload struct {
	Blocks int    `json:"blocks"`
	Origin string `json:"origin"` // save | generated
}

// NewEnvelope создаёт конверт с JSON полезной нагрузкой
func NewEnvelope(eventType, source string, priority int, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации события %s: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: eventType,
		Version:   payloadVersion,
		Priority:  priority,
		Payload:   data,
	}, nil
}

// DecodePayload разбирает полезную нагрузку конверта
func DecodePayload(ev *Envelope, out interface{}) error {
	if err := json.Unmarshal(ev.Payload, out); err != nil {
		return fmt.Errorf("ошибка разбора события %s: %w", ev.EventType, err)
	}
	return nil
}
