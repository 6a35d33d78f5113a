// Package api - операторский REST API: здоровье, статус мира, выгрузка блоков,
// вход по паролю и админские команды сохранения, загрузки и сброса.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/annel0/voxel-sandbox/internal/auth"
	"github.com/annel0/voxel-sandbox/internal/engine"
	"github.com/annel0/voxel-sandbox/internal/logging"
	"github.com/annel0/voxel-sandbox/internal/middleware"
	"github.com/annel0/voxel-sandbox/internal/persistence"
	"github.com/annel0/voxel-sandbox/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// WorldController - доступ к циклу симуляции. Реализуется *engine.Loop.
type WorldController interface {
	Do(ctx context.Context, kind engine.CommandKind) (engine.CommandResult, error)
	HUD() engine.HUD
}

// Config содержит зависимости REST сервера
type Config struct {
	Addr        string               // адрес для запуска, например ":8080"
	UserRepo    auth.UserRepository  // учётные записи операторов
	Issuer      *auth.TokenIssuer    // выпуск и проверка JWT
	World       WorldController      // цикл симуляции
	WebSocket   http.Handler         // мост к рендереру на /ws, может быть nil
	CORSOrigins []string             // пусто - разрешены все
	Registerer  prometheus.Registerer
	Gatherer    prometheus.Gatherer
	Timeout     time.Duration // ожидание ответа цикла на команду
	Logger      *logging.Logger
}

// RestServer представляет REST API сервер
type RestServer struct {
	router  *gin.Engine
	server  *http.Server
	users   auth.UserRepository
	issuer  *auth.TokenIssuer
	world   WorldController
	stats   *ProcessStats
	timeout time.Duration
	logger  *logging.Logger
}

// NewRestServer создаёт сервер и настраивает маршруты
func NewRestServer(cfg Config) (*RestServer, error) {
	if cfg.World == nil {
		return nil, errors.New("не задан цикл симуляции")
	}
	if cfg.UserRepo == nil || cfg.Issuer == nil {
		return nil, errors.New("не настроена аутентификация")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetComponentLogger("http")
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	// === Observability middleware ===
	router.Use(otelgin.Middleware("voxel_api"))
	router.Use(middleware.NewRequestLogger(cfg.Logger).Handler())
	promMw := middleware.NewPrometheusMiddleware("voxel_api", cfg.Registerer, cfg.Gatherer)
	router.Use(promMw.Handler())
	router.Use(corsMiddleware(cfg.CORSOrigins))

	rs := &RestServer{
		router:  router,
		users:   cfg.UserRepo,
		issuer:  cfg.Issuer,
		world:   cfg.World,
		stats:   NewProcessStats(),
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
	rs.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	promMw.RegisterMetricsEndpoint(router)
	rs.setupRoutes(cfg.WebSocket)
	return rs, nil
}

func (rs *RestServer) setupRoutes(ws http.Handler) {
	rs.router.GET("/health", rs.handleHealth)
	if ws != nil {
		rs.router.GET("/ws", gin.WrapH(ws))
	}

	api := rs.router.Group("/api")
	api.POST("/auth/login", rs.handleLogin)
	api.GET("/status", rs.handleStatus)
	api.GET("/world/blocks", rs.handleBlocks)

	admin := api.Group("/world")
	admin.Use(rs.jwtMiddleware(), rs.adminMiddleware())
	{
		admin.POST("/save", rs.handleCommand(engine.CmdSave))
		admin.POST("/load", rs.handleCommand(engine.CmdLoad))
		admin.POST("/reset", rs.handleCommand(engine.CmdReset))
	}
}

// Handler возвращает корневой обработчик (для httptest)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// LoginRequest представляет запрос на вход
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse представляет ответ на вход
type LoginResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
	Message   string `json:"message"`
	IsAdmin   bool   `json:"is_admin,omitempty"`
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// StatusResponse - данные /api/status
type StatusResponse struct {
	World   engine.HUD      `json:"world"`
	Process ProcessSnapshot `json:"process"`
}

// BlocksResponse - данные /api/world/blocks в формате сохранения
type BlocksResponse struct {
	Count  int      `json:"count"`
	Blocks [][4]int `json:"blocks"`
}

func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// handleLogin выдаёт JWT по имени и паролю
func (rs *RestServer) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LoginResponse{
			Success: false,
			Message: "Неверный формат запроса",
		})
		return
	}

	user, err := rs.users.ValidateCredentials(req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		rs.logger.Warn("🔒 Неудачный вход: user=%s ip=%s", req.Username, c.ClientIP())
		c.JSON(http.StatusUnauthorized, LoginResponse{
			Success: false,
			Message: "Неверное имя пользователя или пароль",
		})
		return
	}
	if err != nil {
		rs.logger.Error("Ошибка проверки учётных данных: %v", err)
		c.JSON(http.StatusInternalServerError, LoginResponse{
			Success: false,
			Message: "Внутренняя ошибка сервера",
		})
		return
	}

	token, expires, err := rs.issuer.Generate(user)
	if err != nil {
		rs.logger.Error("Ошибка генерации токена: %v", err)
		c.JSON(http.StatusInternalServerError, LoginResponse{
			Success: false,
			Message: "Ошибка генерации токена",
		})
		return
	}

	rs.logger.Info("🔑 Вход оператора: user=%s admin=%v", user.Username, user.IsAdmin)
	c.JSON(http.StatusOK, LoginResponse{
		Success:   true,
		Token:     token,
		ExpiresAt: expires.Unix(),
		Message:   "Успешная авторизация",
		IsAdmin:   user.IsAdmin,
	})
}

// handleStatus возвращает последний HUD и показатели процесса
func (rs *RestServer) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статус получен",
		Data: StatusResponse{
			World:   rs.world.HUD(),
			Process: rs.stats.Snapshot(),
		},
	})
}

// handleBlocks выгружает все непустые блоки
func (rs *RestServer) handleBlocks(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), rs.timeout)
	defer cancel()

	res, err := rs.world.Do(ctx, engine.CmdBlocks)
	if err != nil {
		rs.writeCommandError(c, engine.CmdBlocks, err)
		return
	}

	blocks := make([][4]int, len(res.Blocks))
	for i, en := range res.Blocks {
		blocks[i] = [4]int{en.Pos.X, en.Pos.Y, en.Pos.Z, int(en.Type)}
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Блоки мира",
		Data:    BlocksResponse{Count: len(blocks), Blocks: blocks},
	})
}

// handleCommand выполняет save/load/reset в цикле симуляции
func (rs *RestServer) handleCommand(kind engine.CommandKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), rs.timeout)
		defer cancel()

		res, err := rs.world.Do(ctx, kind)
		if err != nil {
			rs.writeCommandError(c, kind, err)
			return
		}

		rs.logger.Info("🛠️ Команда %s выполнена оператором %s", kind, c.GetString(ctxUsername))
		c.JSON(http.StatusOK, GenericResponse{
			Success: true,
			Message: res.HUD.Status,
			Data:    res.HUD,
		})
	}
}

// writeCommandError переводит ошибку команды в HTTP-статус
func (rs *RestServer) writeCommandError(c *gin.Context, kind engine.CommandKind, err error) {
	status := http.StatusInternalServerError
	message := "Ошибка выполнения команды"

	switch {
	case errors.Is(err, engine.ErrNoPersistence):
		status, message = http.StatusConflict, "Сохранения не настроены"
	case errors.Is(err, storage.ErrSaveNotFound):
		status, message = http.StatusNotFound, "Сохранение не найдено"
	case errors.Is(err, persistence.ErrMalformedSaveData):
		status, message = http.StatusUnprocessableEntity, "Сохранение повреждено"
	case errors.Is(err, engine.ErrLoopStopped):
		status, message = http.StatusServiceUnavailable, "Симуляция остановлена"
	case errors.Is(err, context.DeadlineExceeded):
		status, message = http.StatusGatewayTimeout, "Истекло время ожидания"
	}

	if status >= 500 {
		rs.logger.Error("Команда %s завершилась ошибкой: %v", kind, err)
	} else {
		rs.logger.Warn("Команда %s отклонена: %v", kind, err)
	}
	c.JSON(status, GenericResponse{Success: false, Message: message})
}

// Start запускает REST сервер и блокируется до Stop
func (rs *RestServer) Start() error {
	rs.logger.Info("🌐 REST API слушает %s", rs.server.Addr)
	if err := rs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop завершает сервер, дожидаясь текущих запросов
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.server.Shutdown(ctx)
}
