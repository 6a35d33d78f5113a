package engine

import (
	"time"
)

// HUD - неизменяемый снимок состояния для отображения и внешних читателей
type HUD struct {
	Tick      uint64     `json:"tick"`
	Position  [3]float64 `json:"position"`
	Grounded  bool       `json:"grounded"`
	HasTarget bool       `json:"has_target"`
	Target    [3]int     `json:"target"`
	Normal    [3]int     `json:"normal"`
	Blocks    int        `json:"blocks"`
	Status    string     `json:"status"`
	WorldID   string     `json:"world_id"`
	Time      time.Time  `json:"time"`
}

// HUD собирает снимок текущего состояния. Вызывается только из горутины симуляции.
func (e *Engine) HUD() HUD {
	h := HUD{
		Tick:      e.tick,
		Position:  e.body.Position.Array(),
		Grounded:  e.body.Grounded,
		HasTarget: e.hasTarget,
		Blocks:    e.store.Count(),
		Status:    e.StatusText(),
		WorldID:   e.worldID,
		Time:      e.now(),
	}
	if e.hasTarget {
		t := e.target
		h.Target = [3]int{t.Block.X, t.Block.Y, t.Block.Z}
		h.Normal = [3]int{t.Normal.X, t.Normal.Y, t.Normal.Z}
	}
	return h
}
