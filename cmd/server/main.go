package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/voxel-sandbox/internal/api"
	"github.com/annel0/voxel-sandbox/internal/auth"
	"github.com/annel0/voxel-sandbox/internal/config"
	"github.com/annel0/voxel-sandbox/internal/engine"
	"github.com/annel0/voxel-sandbox/internal/eventbus"
	"github.com/annel0/voxel-sandbox/internal/logging"
	"github.com/annel0/voxel-sandbox/internal/network"
	"github.com/annel0/voxel-sandbox/internal/observability"
	"github.com/annel0/voxel-sandbox/internal/persistence"
	"github.com/annel0/voxel-sandbox/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configPath := flag.String("config", "", "Путь к YAML конфигурации (по умолчанию $VOXEL_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Некорректная конфигурация: %v", err)
	}

	if err := setupLogging(cfg.Logging); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	defer logging.CloseComponentLoggers()

	logging.Info("🎮 Запуск Voxel Sandbox...")

	if err := run(cfg); err != nil {
		logging.Error("❌ %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
	logging.Info("👋 Сервер успешно остановлен")
}

func setupLogging(lc config.LoggingConfig) error {
	opts := logging.DefaultOptions()
	opts.Dir = lc.Dir
	opts.File = lc.File
	if lc.Level != "" {
		level, err := logging.ParseLevel(lc.Level)
		if err != nil {
			return err
		}
		opts.ConsoleLevel = level
	}
	if lc.FileLevel != "" {
		level, err := logging.ParseLevel(lc.FileLevel)
		if err != nil {
			return err
		}
		opts.FileLevel = level
	}
	logging.Configure(opts)
	return logging.InitDefaultLogger("server")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === OBSERVABILITY ===
	cfg.Telemetry.Endpoint = cfg.Telemetry.GetEndpoint()
	shutdownTelemetry, err := observability.InitTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("ошибка инициализации телеметрии: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logging.Warn("⚠️ Ошибка остановки телеметрии: %v", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// === ХРАНИЛИЩЕ ===
	storeCfg, err := storage.ConfigFrom(cfg.Persistence)
	if err != nil {
		return fmt.Errorf("ошибка конфигурации хранилища: %w", err)
	}
	store, err := storage.Open(ctx, storeCfg)
	if err != nil {
		return fmt.Errorf("ошибка открытия хранилища %s: %w", storeCfg.Backend, err)
	}
	defer store.Close()
	persist := persistence.NewService(store, cfg.Persistence.Slot, cfg.Persistence.Timeout())
	logging.Info("💾 Хранилище сохранений: %s (слот %s)", storeCfg.Backend, persist.Slot())

	// === ШИНА СОБЫТИЙ ===
	bus, err := openEventBus(cfg.EventBus)
	if err != nil {
		return err
	}
	defer bus.Close()

	if _, err := eventbus.StartLoggingListener(ctx, bus); err != nil {
		logging.Warn("⚠️ Не удалось подключить журнал событий: %v", err)
	}
	busMetrics := eventbus.NewMetricsExporter(bus, reg)
	busMetrics.Start()
	defer busMetrics.Stop()

	// === АУТЕНТИФИКАЦИЯ ===
	users, err := newUserRepo(cfg.Auth)
	if err != nil {
		return err
	}
	issuer, err := auth.NewTokenIssuer(cfg.Auth.GetJWTSecret(), cfg.Auth.TokenTTL())
	if err != nil {
		return fmt.Errorf("ошибка настройки JWT: %w", err)
	}
	if cfg.Auth.GetJWTSecret() == "" {
		logging.Warn("⚠️ auth.jwt_secret не задан: используется случайный ключ, токены не переживут перезапуск")
	}

	// === СИМУЛЯЦИЯ И МОСТ ===
	bridgeOpts := network.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		Metrics:     network.NewMetrics(reg),
	}
	if cfg.Server.OpenHotkeys {
		logging.Warn("⚠️ server.open_hotkeys: сохранение, загрузка и сброс по /ws доступны без токена")
	} else {
		bridgeOpts.Authorize = adminToken(issuer)
	}
	latch := engine.NewInputLatch()
	bridge := network.NewBridge(nil, latch, bridgeOpts)
	defer bridge.Close()

	publisher := eventbus.NewWorldPublisher(bus, "engine")
	defer publisher.Close()

	eng, err := engine.New(cfg,
		engine.WithListener(bridge),
		engine.WithPublisher(publisher),
		engine.WithPersistence(persist),
		engine.WithMetrics(engine.NewMetrics(reg)),
	)
	if err != nil {
		return fmt.Errorf("ошибка создания движка: %w", err)
	}
	eng.Boot(ctx)

	loop := engine.NewLoop(eng, latch, engine.WithHUDListener(bridge.PublishHUD))
	bridge.SetExecutor(loop)

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = loop.Run(ctx)
	}()

	// === REST API ===
	restPort := cfg.Server.GetRESTPort()
	restServer, err := api.NewRestServer(api.Config{
		Addr:        fmt.Sprintf(":%d", restPort),
		UserRepo:    users,
		Issuer:      issuer,
		World:       loop,
		WebSocket:   bridge,
		CORSOrigins: cfg.Server.CORSOrigins,
		Registerer:  reg,
		Gatherer:    reg,
	})
	if err != nil {
		return fmt.Errorf("ошибка создания REST API: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- restServer.Start() }()

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🌐 REST API: http://localhost:%d", restPort)
	logging.Info("   🧱 WebSocket рендерера: ws://localhost:%d/ws", restPort)
	logging.Info("   ❤️  Health check: http://localhost:%d/health", restPort)

	var runErr error
	select {
	case <-ctx.Done():
		logging.Info("📡 Получен сигнал завершения, останавливаемся...")
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("REST API остановился: %w", err)
		}
		stop()
	}

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bridge.Close()
	if err := restServer.Stop(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}

	// Цикл записывает финальное сохранение перед выходом
	select {
	case <-loopDone:
	case <-shutdownCtx.Done():
		logging.Warn("⚠️ Цикл симуляции не успел остановиться")
	}
	return runErr
}

func openEventBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	if cfg.Backend == "nats" {
		url := cfg.GetURL()
		bus, err := eventbus.NewJetStreamBus(url, cfg.Stream, time.Duration(cfg.Retention)*time.Hour)
		if err != nil {
			return nil, fmt.Errorf("ошибка подключения к NATS %s: %w", url, err)
		}
		logging.Info("📨 Шина событий: NATS JetStream %s (стрим %s)", url, cfg.Stream)
		return bus, nil
	}
	logging.Info("📨 Шина событий: в памяти")
	return eventbus.NewMemoryBus(1024), nil
}

// newUserRepo создаёт администратора. Без заданного хеша пароль генерируется и печатается один раз.
func newUserRepo(cfg config.AuthConfig) (*auth.MemoryUserRepo, error) {
	username := cfg.AdminUser
	if username == "" {
		username = "admin"
	}
	repo, generated, err := auth.NewAdminRepo(username, cfg.GetAdminPasswordHash())
	if err != nil {
		return nil, err
	}
	if generated != "" {
		logging.Warn("🔐 auth.admin_password_hash не задан, создан временный пароль: %s / %s", username, generated)
	}
	return repo, nil
}

// adminToken разрешает горячие клавиши моста только по действующему токену администратора
func adminToken(issuer *auth.TokenIssuer) func(string) bool {
	return func(token string) bool {
		claims, err := issuer.Validate(token)
		return err == nil && claims.IsAdmin
	}
}
