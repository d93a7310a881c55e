package chat

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/docchat/internal/model/chat"
	"github.com/zhouzirui/docchat/internal/service/ai"
	chatService "github.com/zhouzirui/docchat/internal/service/chat"
	"github.com/zhouzirui/docchat/internal/service/ingest"
	"github.com/zhouzirui/docchat/pkg/utils"
)

// 发给客户端的错误描述保持固定，不暴露内部原因。
const (
	MsgAnswerFailed     = "Sorry, something went wrong. Try again."
	MsgIndexFailed      = "Sorry, the document could not be indexed."
	MsgUnsupportedFrame = "Sorry, only text messages are supported."
)

// ErrConnectionClosed 表示连接已经断开或写入失败过。
var ErrConnectionClosed = errors.New("chat: connection closed")

// ChainFactory 为一篇文档建立索引并返回绑定的对话链。
type ChainFactory interface {
	NewChain(ctx context.Context, docs []*schema.Document) (ai.Chain, error)
}

// UsageRecorder 记录一次对话的开始。
type UsageRecorder interface {
	Increment(ctx context.Context) error
}

// Options 控制会话的超时与心跳。零值字段使用默认值。
type Options struct {
	ForwardCondensedQuestion bool
	AnswerTimeout            time.Duration
	SetupTimeout             time.Duration
	UsageTimeout             time.Duration
	PongWait                 time.Duration
	PingInterval             time.Duration
	WriteWait                time.Duration
}

func (o Options) withDefaults() Options {
	if o.AnswerTimeout <= 0 {
		o.AnswerTimeout = 2 * time.Minute
	}
	if o.SetupTimeout <= 0 {
		o.SetupTimeout = time.Minute
	}
	if o.UsageTimeout <= 0 {
		o.UsageTimeout = 5 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	return o
}

// Handler 处理 /chat WebSocket：首帧是文档，之后每帧是一个问题。
type Handler struct {
	chains   ChainFactory
	sessions *chatService.Service
	usage    UsageRecorder
	opts     Options
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// New 创建聊天处理器。chains 为 nil 时握手请求返回 503；usage 可以为 nil。
func New(chains ChainFactory, sessions *chatService.Service, usage UsageRecorder, opts Options, logger *zap.Logger) *Handler {
	if sessions == nil {
		sessions = chatService.NewService()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chains:   chains,
		sessions: sessions,
		usage:    usage,
		opts:     opts.withDefaults(),
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.chains == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "chat unavailable")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	session := h.sessions.CreateSession(r.Context())
	defer h.sessions.CloseSession(context.Background(), session.ID)

	log := h.logger.With(zap.String("session", session.ID))
	log.Info("chat connected", zap.String("remote", r.RemoteAddr))
	defer h.logDisconnect(session.ID, log)

	// 连接断开后不再依赖请求的 context。
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newConnection(ctx, cancel, conn, h.opts, log)
	go c.readLoop()
	go c.pingLoop()

	chain, ok := h.setup(c, log)
	if !ok {
		return
	}

	for {
		f, ok := c.next()
		if !ok {
			return
		}
		if f.kind != websocket.TextMessage {
			if err := c.Send(chat.ErrorMessage(MsgUnsupportedFrame)); err != nil {
				return
			}
			continue
		}
		if err := h.answer(c, chain, session.ID, string(f.data), log); err != nil {
			log.Debug("chat loop ended", zap.Error(err))
			return
		}
	}
}

// logDisconnect 在会话被删除前记录会话时长和轮数。
func (h *Handler) logDisconnect(sessionID string, log *zap.Logger) {
	ctx := context.Background()
	session, err := h.sessions.GetSession(ctx, sessionID)
	if err != nil {
		log.Warn("chat disconnected", zap.Error(err))
		return
	}
	history, _ := h.sessions.LoadHistory(ctx, sessionID)
	log.Info("chat disconnected",
		zap.Time("created_at", session.CreatedAt),
		zap.Duration("duration", time.Since(session.CreatedAt)),
		zap.Int("turns", len(history)),
	)
}

// setup 读取文档、发送 init、计数并建立索引。
func (h *Handler) setup(c *connection, log *zap.Logger) (ai.Chain, bool) {
	f, ok := c.next()
	if !ok {
		return nil, false
	}
	if f.kind != websocket.TextMessage {
		_ = c.Send(chat.ErrorMessage(MsgIndexFailed))
		c.closeWith(websocket.CloseUnsupportedData, "document must be text")
		return nil, false
	}

	if err := c.Send(chat.InitMessage()); err != nil {
		return nil, false
	}
	h.recordUsage(log)

	ctx, cancel := context.WithTimeout(c.ctx, h.opts.SetupTimeout)
	defer cancel()

	docs, err := ingest.NewLoader(string(f.data)).Load(ctx)
	if err == nil {
		var chain ai.Chain
		chain, err = h.chains.NewChain(ctx, docs)
		if err == nil {
			log.Info("document indexed", zap.Int("bytes", len(f.data)))
			return chain, true
		}
	}

	if c.ctx.Err() != nil {
		return nil, false
	}
	log.Error("document indexing failed", zap.Error(err))
	_ = c.Send(chat.ErrorMessage(MsgIndexFailed))
	c.closeWith(websocket.CloseInternalServerErr, "indexing failed")
	return nil, false
}

// recordUsage 异步计数；失败只记录日志，不影响会话。
func (h *Handler) recordUsage(log *zap.Logger) {
	if h.usage == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.opts.UsageTimeout)
		defer cancel()
		if err := h.usage.Increment(ctx); err != nil {
			log.Warn("usage counter increment failed", zap.Error(err))
		}
	}()
}

// answer 处理一个问题。只有连接不可用时才返回错误；回答失败会告知客户端并继续。
func (h *Handler) answer(c *connection, chain ai.Chain, sessionID, question string, log *zap.Logger) error {
	if err := c.Send(chat.EchoMessage(question)); err != nil {
		return err
	}
	if err := c.Send(chat.StartMessage()); err != nil {
		return err
	}

	history, err := h.sessions.LoadHistory(c.ctx, sessionID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.ctx, h.opts.AnswerTimeout)
	defer cancel()

	started := time.Now()
	run := chain.Ask(ctx, question, history)
	bridge := NewBridge(c, h.opts.ForwardCondensedQuestion)

	var sendErr error
	for ev := range run.Events() {
		if sendErr != nil {
			continue
		}
		if err := bridge.Forward(ev); err != nil {
			sendErr = err
			cancel()
		}
	}
	result := run.Wait()

	if sendErr != nil {
		return sendErr
	}
	if c.ctx.Err() != nil {
		return ErrConnectionClosed
	}
	if result.Failed() {
		log.Warn("answer failed", zap.Error(result.Err), zap.Duration("elapsed", time.Since(started)))
		return c.Send(chat.ErrorMessage(MsgAnswerFailed))
	}

	if err := h.sessions.AppendTurn(c.ctx, sessionID, chat.Turn{Question: question, Answer: result.Answer}); err != nil {
		return err
	}
	log.Debug("answer complete", zap.Int("turns", len(history)+1), zap.Duration("elapsed", time.Since(started)))
	return c.Send(chat.EndMessage())
}

type frame struct {
	kind int
	data []byte
}

// connection 串行化一个 socket 上的读写。数据帧只由处理器 goroutine 写入，
// ping 和 close 通过 WriteControl 并发发送。
type connection struct {
	ctx    context.Context
	cancel context.CancelFunc
	conn   *websocket.Conn
	opts   Options
	log    *zap.Logger
	frames chan frame

	mu     sync.Mutex
	broken bool
}

func newConnection(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, opts Options, log *zap.Logger) *connection {
	return &connection{
		ctx:    ctx,
		cancel: cancel,
		conn:   conn,
		opts:   opts,
		log:    log,
		frames: make(chan frame),
	}
}

// next 阻塞直到收到下一帧；连接断开时返回 false。
func (c *connection) next() (frame, bool) {
	select {
	case f, ok := <-c.frames:
		return f, ok
	case <-c.ctx.Done():
		return frame{}, false
	}
}

// Send 写出一帧。第一次失败后连接被视为断开，后续调用直接返回错误。
func (c *connection) Send(msg chat.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken || c.ctx.Err() != nil {
		return ErrConnectionClosed
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.broken = true
		c.cancel()
		c.log.Debug("websocket write failed", zap.Error(err))
		return ErrConnectionClosed
	}
	return nil
}

func (c *connection) closeWith(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteWait)); err != nil {
		c.log.Debug("websocket close failed", zap.Error(err))
	}
}

func (c *connection) readLoop() {
	defer close(c.frames)
	defer c.cancel()

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		// 处理器忙时这里会阻塞在 frames 上，所以每次读之前重新计时。
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Info("websocket read error", zap.Error(err))
			}
			return
		}

		select {
		case c.frames <- frame{kind: kind, data: data}:
		case <-c.ctx.Done():
			return
		}
	}
}

// pingLoop 定期发送 ping 保持连接。
func (c *connection) pingLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteWait)); err != nil {
				return
			}
		}
	}
}
