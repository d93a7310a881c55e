package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/docchat/internal/handler/chat"
	"github.com/zhouzirui/docchat/internal/handler/page"
	middlewarePkg "github.com/zhouzirui/docchat/internal/middleware"
	chatService "github.com/zhouzirui/docchat/internal/service/chat"
)

// PageTitle 显示在聊天页面顶部。
const PageTitle = "Chat with your document"

// Deps 汇总路由需要的服务。Chains 为 nil 时 /chat 返回 503。
type Deps struct {
	Chains   chat.ChainFactory
	Sessions *chatService.Service
	Usage    chat.UsageRecorder
	Chat     chat.Options
	Logger   *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) (http.Handler, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	pageHandler, err := page.New(PageTitle, "/chat", logger)
	if err != nil {
		return nil, fmt.Errorf("failed to render page: %w", err)
	}
	chatHandler := chat.New(deps.Chains, deps.Sessions, deps.Usage, deps.Chat, logger.Named("chat"))

	r.Method(http.MethodGet, "/", pageHandler)
	r.Method(http.MethodGet, "/chat", chatHandler)

	return r, nil
}
