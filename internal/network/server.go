// Package network реализует WebSocket-мост между движком и внешним рендером:
// клиент получает снимок мира и поток изменений, а отправляет ввод.
package network

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/annel0/voxel-sandbox/internal/engine"
	"github.com/annel0/voxel-sandbox/internal/logging"
	"github.com/annel0/voxel-sandbox/internal/vec"
	"github.com/annel0/voxel-sandbox/internal/world"
	"github.com/annel0/voxel-sandbox/internal/world/block"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	snapshotWait   = 2 * time.Second
)

// Executor выполняет функцию в горутине симуляции (см. engine.Loop.Exec)
type Executor interface {
	Exec(ctx context.Context, fn func(*engine.Engine)) error
}

// Client представляет подключенного клиента
type Client struct {
	conn  *websocket.Conn // WebSocket соединение
	send  chan []byte     // Канал для отправки сообщений
	id    string          // Уникальный идентификатор
	admin bool            // Разрешены горячие клавиши; меняется только в readPump
}

// ID возвращает идентификатор клиента
func (c *Client) ID() string {
	return c.id
}

// Options настраивает Bridge
type Options struct {
	SendBuffer  int      // Размер очереди отправки на клиента
	CORSOrigins []string // Пусто - разрешены любые Origin
	Metrics     *Metrics

	// Authorize проверяет токен оператора для горячих клавиш save/load/reset.
	// nil - горячие клавиши доступны любому клиенту.
	Authorize func(token string) bool
}

// Bridge - сервер рендер-клиентов. Реализует world.Listener: изменения мира
// рассылаются в том порядке, в котором движок их сообщает.
type Bridge struct {
	exec     Executor
	latch    *engine.InputLatch
	upgrader websocket.Upgrader
	clients  map[string]*Client // Карта подключенных клиентов
	mu       sync.RWMutex       // Мьютекс для синхронизации
	buffer    int
	metrics   *Metrics
	authorize func(token string) bool
	logger    *logging.Logger

	// batching выставлен между OnBatchStart и OnBatchEnd; трогается только из горутины симуляции
	batching bool
}

var (
	_ world.Listener      = (*Bridge)(nil)
	_ world.BatchListener = (*Bridge)(nil)
)

// NewBridge создаёт мост. Ввод клиентов складывается в latch, снимок мира
// снимается через exec.
func NewBridge(exec Executor, latch *engine.InputLatch, opts Options) *Bridge {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}

	b := &Bridge{
		exec:    exec,
		latch:   latch,
		clients: make(map[string]*Client),
		buffer:  opts.SendBuffer,
		metrics:   opts.Metrics,
		authorize: opts.Authorize,
		logger:    logging.GetNetworkLogger(),
	}
	b.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.CORSOrigins),
	}
	return b
}

// SetExecutor подключает цикл симуляции после создания моста
func (b *Bridge) SetExecutor(exec Executor) {
	b.exec = exec
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	if _, all := set["*"]; all {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeHTTP позволяет монтировать мост как http.Handler
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.HandleConnection(w, r)
}

// HandleConnection обрабатывает новое WebSocket подключение
func (b *Bridge) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("Ошибка апгрейда соединения: %v", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, b.buffer),
		id:   uuid.NewString(),
	}
	if token := r.URL.Query().Get("token"); token != "" {
		client.admin = b.checkToken(token)
	}

	// Снимок и регистрация выполняются в горутине симуляции: клиент получает
	// все изменения после снимка и ни одного до него.
	ctx, cancel := context.WithTimeout(r.Context(), snapshotWait)
	defer cancel()
	var snapErr error
	err = b.exec.Exec(ctx, func(e *engine.Engine) {
		if ctx.Err() != nil {
			snapErr = ctx.Err()
			return
		}
		data, err := encodeMessage(MsgTypeSnapshot, NewSnapshot(e))
		if err != nil {
			snapErr = err
			return
		}
		client.send <- data
		b.metrics.sent.WithLabelValues(MsgTypeSnapshot).Inc()
		b.register(client)
	})
	if err == nil {
		err = snapErr
	}
	if err != nil {
		b.logger.Error("❌ Не удалось отправить снимок мира клиенту %s: %v", client.id, err)
		b.unregister(client)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "world unavailable"), time.Now().Add(time.Second))
		conn.Close()
		return
	}

	// Запускаем горутины для чтения и записи
	go b.writePump(client)
	go b.readPump(client)
}

func (b *Bridge) register(c *Client) {
	b.mu.Lock()
	b.clients[c.id] = c
	n := len(b.clients)
	b.mu.Unlock()

	b.metrics.connections.Set(float64(n))
	b.logger.Info("🔌 Клиент подключён: %s (всего %d)", c.id, n)
}

// unregister удаляет клиента и закрывает его очередь. Повторный вызов безопасен.
func (b *Bridge) unregister(c *Client) {
	b.mu.Lock()
	_, ok := b.clients[c.id]
	if ok {
		delete(b.clients, c.id)
		close(c.send)
	}
	n := len(b.clients)
	b.mu.Unlock()

	if ok {
		b.metrics.connections.Set(float64(n))
		b.logger.Info("Клиент отключён: %s", c.id)
	}
}

// readPump асинхронно читает сообщения от клиента
func (b *Bridge) readPump(c *Client) {
	defer func() {
		b.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize) // Ограничиваем размер сообщения
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				b.logger.Warn("Ошибка чтения от %s: %v", c.id, err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if err := b.handleMessage(c, data); err != nil {
			b.logger.LogProtocolError(c.id, err, data)
			b.sendTo(c, MsgTypeServerMessage, ServerMessage{MessageType: "error", Content: err.Error()})
		}
	}
}

var (
	errUnknownType     = errors.New("неизвестный тип сообщения")
	errInvalidToken    = errors.New("токен не принят")
	errHotkeyForbidden = errors.New("горячие клавиши требуют токена администратора")
)

// checkToken возвращает true, если токен даёт право на горячие клавиши
func (b *Bridge) checkToken(token string) bool {
	if b.authorize == nil {
		return true
	}
	return b.authorize(token)
}

// handleMessage разбирает входящее сообщение и передаёт ввод движку
func (b *Bridge) handleMessage(c *Client, data []byte) error {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		b.metrics.errors.WithLabelValues("json").Inc()
		return err
	}
	b.metrics.received.WithLabelValues(msg.Type).Inc()

	switch msg.Type {
	case MsgTypeInput:
		var in InputMessage
		if err := json.Unmarshal(msg.Data, &in); err != nil {
			b.metrics.errors.WithLabelValues("input").Inc()
			return err
		}
		frame, err := in.Frame()
		if err != nil {
			b.metrics.errors.WithLabelValues("input").Inc()
			return err
		}
		b.latch.Update(frame)

	case MsgTypeAuth:
		var am AuthMessage
		if err := json.Unmarshal(msg.Data, &am); err != nil {
			b.metrics.errors.WithLabelValues("auth").Inc()
			return err
		}
		if !b.checkToken(am.Token) {
			b.metrics.errors.WithLabelValues("auth").Inc()
			return errInvalidToken
		}
		c.admin = true
		b.sendTo(c, MsgTypeServerMessage, ServerMessage{MessageType: "info", Content: "authorized"})

	case MsgTypeHotkey:
		if b.authorize != nil && !c.admin {
			b.metrics.errors.WithLabelValues("forbidden").Inc()
			return errHotkeyForbidden
		}
		var hk HotkeyMessage
		if err := json.Unmarshal(msg.Data, &hk); err != nil {
			b.metrics.errors.WithLabelValues("hotkey").Inc()
			return err
		}
		key, ok := engine.ParseHotkey(hk.Key)
		if !ok {
			b.metrics.errors.WithLabelValues("hotkey").Inc()
			return errors.New("неизвестная горячая клавиша " + hk.Key)
		}
		b.latch.PressHotkey(key)

	default:
		b.metrics.errors.WithLabelValues("type").Inc()
		return errUnknownType
	}
	return nil
}

// writePump асинхронно отправляет сообщения клиенту
func (b *Bridge) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod) // Пинг каждые 30 секунд
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Канал закрыт
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
			b.metrics.sentBytes.Add(float64(len(message)))

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendTo ставит сообщение в очередь одного клиента
func (b *Bridge) sendTo(c *Client, msgType string, data interface{}) {
	payload, err := encodeMessage(msgType, data)
	if err != nil {
		b.logger.Error("❌ Ошибка сериализации %s: %v", msgType, err)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- payload:
		b.metrics.sent.WithLabelValues(msgType).Inc()
	default:
	}
}

// broadcast рассылает сообщение всем клиентам. Клиент с переполненной
// очередью отключается: пропуск изменения рассинхронизировал бы его мир.
func (b *Bridge) broadcast(msgType string, data interface{}) {
	payload, err := encodeMessage(msgType, data)
	if err != nil {
		b.logger.Error("❌ Ошибка сериализации %s: %v", msgType, err)
		return
	}

	var slow []*Client
	b.mu.RLock()
	for _, c := range b.clients {
		select {
		case c.send <- payload:
			b.metrics.sent.WithLabelValues(msgType).Inc()
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		b.metrics.dropped.Inc()
		b.logger.Warn("⚠️ Клиент %s не успевает за обновлениями, отключаем", c.id)
		b.unregister(c)
	}
}

// OnBlockChanged рассылает изменение вокселя
func (b *Bridge) OnBlockChanged(pos vec.Vec3, old, new block.Type) {
	if b.batching {
		return
	}
	b.broadcast(MsgTypeBlock, newBlockMessage(pos, old, new))
}

// OnWorldCleared рассылает очистку мира
func (b *Bridge) OnWorldCleared() {
	if b.batching {
		return
	}
	b.broadcast(MsgTypeCleared, struct{}{})
}

// OnBatchStart приостанавливает поблочную рассылку до конца замены мира
func (b *Bridge) OnBatchStart() {
	b.batching = true
}

// OnBatchEnd рассылает новый мир одним снимком
func (b *Bridge) OnBatchEnd(batch world.Batch) {
	b.batching = false
	b.broadcast(MsgTypeSnapshot, newSnapshot(batch.WorldID, batch.Player, world.Snapshot(batch.Store)))
}

// PublishHUD рассылает снимок HUD; подходит для engine.WithHUDListener
func (b *Bridge) PublishHUD(h engine.HUD) {
	b.broadcast(MsgTypeHUD, h)
}

// GetConnectedClients возвращает количество подключенных клиентов
func (b *Bridge) GetConnectedClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Close отключает всех клиентов
func (b *Bridge) Close() {
	b.mu.Lock()
	clients := make([]*Client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.Unlock()

	for _, c := range clients {
		b.unregister(c)
	}
}
