package util

import (
	"github.com/aquilax/go-perlin"
)

// Параметры шума Перлина
const (
	noiseAlpha   = 2.0 // Сглаживание шума
	noiseBeta    = 2.0 // Частота шума
	noiseOctaves = 3   // Количество октав
)

// NoiseField - двумерное поле шума Перлина с фиксированным сидом.
// Значения нормализованы в диапазон [0, 1].
type NoiseField struct {
	perlin *perlin.Perlin
	scale  float64
}

// NewNoiseField создаёт поле шума. scale масштабирует входные координаты.
func NewNoiseField(seed int64, scale float64) *NoiseField {
	if scale <= 0 {
		scale = 1
	}
	return &NoiseField{
		perlin: perlin.NewPerlin(noiseAlpha, noiseBeta, noiseOctaves, seed),
		scale:  scale,
	}
}

// At возвращает значение шума для указанных координат (от 0 до 1)
func (f *NoiseField) At(x, y float64) float64 {
	// Получаем значение шума (от -1 до 1)
	n := f.perlin.Noise2D(x*f.scale, y*f.scale)

	// Преобразуем в диапазон от 0 до 1
	v := (n + 1.0) / 2.0
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
