package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации приложения.
// Отсутствующие в YAML поля сохраняют значения из Default().
type Config struct {
	World       WorldConfig       `yaml:"world"`
	Player      PlayerConfig      `yaml:"player"`
	Physics     PhysicsConfig     `yaml:"physics"`
	Interaction InteractionConfig `yaml:"interaction"`
	Simulation  SimulationConfig  `yaml:"simulation"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Server      ServerConfig      `yaml:"server"`
	EventBus    EventBusConfig    `yaml:"eventbus"`
	Auth        AuthConfig        `yaml:"auth"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type WorldConfig struct {
	Radius           int        `yaml:"radius"`
	Trees            int        `yaml:"trees"`
	TreeRange        int        `yaml:"tree_range"`
	TrunkHeight      int        `yaml:"trunk_height"`
	Seed             int64      `yaml:"seed"` // 0 - по времени
	ClusterThreshold float64    `yaml:"cluster_threshold"`
	ClusterScale     float64    `yaml:"cluster_scale"`
	Spawn            [3]float64 `yaml:"spawn"`
}

type PlayerConfig struct {
	Height    float64 `yaml:"height"`
	Radius    float64 `yaml:"radius"`
	EyeHeight float64 `yaml:"eye_height"` // точка выхода луча, если клиент не передал её сам
	MoveSpeed float64 `yaml:"move_speed"`
}

type PhysicsConfig struct {
	Gravity       float64 `yaml:"gravity"`
	JumpSpeed     float64 `yaml:"jump_speed"`
	GroundEpsilon float64 `yaml:"ground_epsilon"`
	WorldFloor    float64 `yaml:"world_floor"`
	HeadBump      bool    `yaml:"head_bump"`
	WallCollision bool    `yaml:"wall_collision"`
}

type InteractionConfig struct {
	Reach        float64 `yaml:"reach"`
	Placement    string  `yaml:"placement"` // two_voxel | aabb
	DefaultBlock string  `yaml:"default_block"`
}

type SimulationConfig struct {
	TickRate           int `yaml:"tick_rate"` // шагов в секунду
	MaxStepMs          int `yaml:"max_step_ms"`
	AutosaveIntervalMs int `yaml:"autosave_interval_ms"` // 0 - автосохранение выключено
	HUDRate            int `yaml:"hud_rate"`
}

type PersistenceConfig struct {
	Backend     string      `yaml:"backend"` // memory | file | badger | redis | sqlite | mysql | mongo
	Path        string      `yaml:"path"`
	Compression string      `yaml:"compression"` // none | gzip | zstd
	Slot        string      `yaml:"slot"`
	DSN         string      `yaml:"dsn"`
	TimeoutMs   int         `yaml:"timeout_ms"`
	Redis       RedisConfig `yaml:"redis"`
	Mongo       MongoConfig `yaml:"mongo"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type ServerConfig struct {
	RESTPort    int      `yaml:"rest_port"`
	CORSOrigins []string `yaml:"cors_origins"`
	OpenHotkeys bool     `yaml:"open_hotkeys"` // save/load/reset по /ws без токена администратора
}

type EventBusConfig struct {
	Backend   string `yaml:"backend"` // memory | nats
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

type AuthConfig struct {
	JWTSecret         string `yaml:"jwt_secret"` // base64, не короче 32 байт
	AdminUser         string `yaml:"admin_user"`
	AdminPasswordHash string `yaml:"admin_password_hash"` // bcrypt
	TokenTTLMinutes   int    `yaml:"token_ttl_minutes"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
	Endpoint    string `yaml:"endpoint"` // host:port OTLP HTTP
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	FileLevel string `yaml:"file_level"`
	Dir       string `yaml:"dir"`
	File      bool   `yaml:"file"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		World: WorldConfig{
			Radius:           18,
			Trees:            10,
			TreeRange:        9,
			TrunkHeight:      4,
			ClusterThreshold: 0.45,
			ClusterScale:     0.15,
			Spawn:            [3]float64{0, 4, 10},
		},
		Player: PlayerConfig{
			Height:    1.8,
			Radius:    0.3,
			EyeHeight: 1.6,
			MoveSpeed: 9,
		},
		Physics: PhysicsConfig{
			Gravity:       28,
			JumpSpeed:     11,
			GroundEpsilon: 0.05,
			WorldFloor:    -30,
		},
		Interaction: InteractionConfig{
			Reach:        7,
			Placement:    "two_voxel",
			DefaultBlock: "dirt",
		},
		Simulation: SimulationConfig{
			TickRate:           60,
			MaxStepMs:          50,
			AutosaveIntervalMs: 3000,
			HUDRate:            10,
		},
		Persistence: PersistenceConfig{
			Backend:     "file",
			Path:        "saves",
			Compression: "none",
			Slot:        "world",
			TimeoutMs:   2000,
		},
		Server: ServerConfig{
			RESTPort: 8088,
		},
		EventBus: EventBusConfig{
			Backend:   "memory",
			Stream:    "VOXEL_EVENTS",
			Retention: 24,
		},
		Auth: AuthConfig{
			AdminUser:       "admin",
			TokenTTLMinutes: 60,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "voxel-sandbox",
		},
		Logging: LoggingConfig{
			Level:     "info",
			FileLevel: "trace",
			Dir:       "logs",
			File:      true,
		},
	}
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать путь из ENV VOXEL_CONFIG; без него возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("VOXEL_CONFIG")
		if path == "" {
			return cfg, nil // конфиг не задан - использовать дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать конфигурацию %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора конфигурации %s: %w", path, err)
	}

	return cfg, nil
}

// Validate проверяет согласованность значений
func (c *Config) Validate() error {
	var errs []error

	if c.World.Radius < 0 {
		errs = append(errs, fmt.Errorf("world.radius не может быть отрицательным"))
	}
	if c.World.Trees < 0 || c.World.TreeRange < 0 {
		errs = append(errs, fmt.Errorf("world.trees и world.tree_range не могут быть отрицательными"))
	}
	if c.Player.Height <= 0 || c.Player.Radius <= 0 {
		errs = append(errs, fmt.Errorf("размеры игрока должны быть положительными"))
	}
	if c.Player.EyeHeight < 0 || c.Player.EyeHeight > c.Player.Height {
		errs = append(errs, fmt.Errorf("player.eye_height должен лежать в пределах роста игрока"))
	}
	if c.Physics.Gravity < 0 || c.Physics.GroundEpsilon <= 0 {
		errs = append(errs, fmt.Errorf("physics.gravity >= 0 и physics.ground_epsilon > 0"))
	}
	if c.Interaction.Reach <= 0 {
		errs = append(errs, fmt.Errorf("interaction.reach должен быть положительным"))
	}
	if c.Interaction.Placement != "two_voxel" && c.Interaction.Placement != "aabb" {
		errs = append(errs, fmt.Errorf("interaction.placement: неизвестный режим %q", c.Interaction.Placement))
	}
	if c.Simulation.TickRate <= 0 || c.Simulation.MaxStepMs <= 0 {
		errs = append(errs, fmt.Errorf("simulation.tick_rate и simulation.max_step_ms должны быть положительными"))
	}
	if c.Simulation.AutosaveIntervalMs < 0 {
		errs = append(errs, fmt.Errorf("simulation.autosave_interval_ms не может быть отрицательным"))
	}
	if c.EventBus.Backend != "memory" && c.EventBus.Backend != "nats" {
		errs = append(errs, fmt.Errorf("eventbus.backend: неизвестный тип %q", c.EventBus.Backend))
	}

	return errors.Join(errs...)
}

// MaxStep возвращает максимальный шаг симуляции
func (s *SimulationConfig) MaxStep() time.Duration {
	return time.Duration(s.MaxStepMs) * time.Millisecond
}

// TickInterval возвращает период кадра
func (s *SimulationConfig) TickInterval() time.Duration {
	return time.Second / time.Duration(s.TickRate)
}

// AutosaveInterval возвращает период автосохранения
func (s *SimulationConfig) AutosaveInterval() time.Duration {
	return time.Duration(s.AutosaveIntervalMs) * time.Millisecond
}

// HUDInterval возвращает период рассылки HUD клиентам
func (s *SimulationConfig) HUDInterval() time.Duration {
	if s.HUDRate <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(s.HUDRate)
}

// Timeout возвращает таймаут операций хранилища
func (p *PersistenceConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// GetBackend возвращает тип хранилища с приоритетом: config -> env -> default
func (p *PersistenceConfig) GetBackend() string {
	return getStringWithEnvFallback(p.Backend, "VOXEL_STORAGE_BACKEND", "file")
}

// GetDSN возвращает строку подключения MySQL
func (p *PersistenceConfig) GetDSN() string {
	return getStringWithEnvFallback(p.DSN, "VOXEL_MYSQL_DSN", "")
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "VOXEL_REST_PORT", 8088)
}

// GetURL возвращает адрес NATS
func (e *EventBusConfig) GetURL() string {
	return getStringWithEnvFallback(e.URL, "NATS_URL", "nats://127.0.0.1:4222")
}

// GetJWTSecret возвращает секрет JWT; пустая строка означает случайный секрет процесса
func (a *AuthConfig) GetJWTSecret() string {
	return getStringWithEnvFallback(a.JWTSecret, "VOXEL_JWT_SECRET", "")
}

// GetAdminPasswordHash возвращает bcrypt-хеш пароля администратора
func (a *AuthConfig) GetAdminPasswordHash() string {
	return getStringWithEnvFallback(a.AdminPasswordHash, "VOXEL_ADMIN_PASSWORD_HASH", "")
}

// TokenTTL возвращает время жизни токена
func (a *AuthConfig) TokenTTL() time.Duration {
	if a.TokenTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}

// GetEndpoint возвращает адрес OTLP коллектора
func (t *TelemetryConfig) GetEndpoint() string {
	return getStringWithEnvFallback(t.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT", "")
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	// Если порт задан в конфиге и больше 0, используем его
	if configPort > 0 {
		return configPort
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	// Используем дефолтное значение
	return defaultPort
}

// getStringWithEnvFallback возвращает строку с приоритетом: config -> env -> default
func getStringWithEnvFallback(configVal, envVar, defaultVal string) string {
	if configVal != "" {
		return configVal
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		return envVal
	}
	return defaultVal
}
