package utils

import (
	"encoding/json"
	"net/http"
)

// ErrorBody 是所有 JSON 错误响应的结构。
type ErrorBody struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// RespondJSON 发送JSON响应。写入失败时连接通常已断开，返回错误供调用方记录。
func RespondJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	_ = RespondJSON(w, status, ErrorBody{Error: message, Status: status})
}
