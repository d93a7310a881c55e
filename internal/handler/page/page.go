package page

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"

	"go.uber.org/zap"
)

//go:embed index.html
var indexHTML string

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

type indexData struct {
	Title      string
	SocketPath string
}

// Handler 渲染聊天页面。页面在加载时把 SocketPath 解析为 ws(s) 地址。
type Handler struct {
	body   []byte
	logger *zap.Logger
}

// New 预先渲染页面；socketPath 是 WebSocket 路由。
func New(title, socketPath string, logger *zap.Logger) (*Handler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, indexData{Title: title, SocketPath: socketPath}); err != nil {
		return nil, err
	}
	return &Handler{body: buf.Bytes(), logger: logger}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write(h.body); err != nil {
		h.logger.Debug("write page failed", zap.Error(err))
	}
}
