package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/zhouzirui/docchat/internal/config"
	"github.com/zhouzirui/docchat/internal/logger"
	"github.com/zhouzirui/docchat/internal/model/chat"
)

func main() {
	url := pflag.String("url", "ws://localhost:9000/chat", "chat WebSocket 地址")
	docPath := pflag.StringP("doc", "d", "", "要加载的文档路径")
	questions := pflag.StringArrayP("question", "q", nil, "要提问的问题，可重复；留空则从标准输入逐行读取")
	timeout := pflag.Duration("timeout", 2*time.Minute, "每个问题从发送到回答结束的总超时时间")
	verbose := pflag.BoolP("verbose", "v", false, "输出调试日志")
	pflag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	testerLogger, err := logger.New(config.LogConfig{Level: level, Development: true})
	if err != nil {
		log.Fatalf("创建日志失败: %v", err)
	}
	defer func() { _ = testerLogger.Sync() }()

	if *docPath == "" {
		pflag.Usage()
		testerLogger.Fatal("请通过 --doc 指定文档路径")
	}
	doc, err := os.ReadFile(*docPath)
	if err != nil {
		testerLogger.Fatal("读取文档失败", zap.Error(err))
	}

	if len(*questions) == 0 {
		*questions = readLines(os.Stdin)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		testerLogger.Fatal("连接失败", zap.String("url", *url), zap.Error(err))
	}
	defer conn.Close()

	p := &tester{conn: conn, out: os.Stdout, timeout: *timeout, logger: testerLogger}
	if err := p.run(context.Background(), string(doc), *questions); err != nil {
		testerLogger.Fatal("测试失败", zap.Error(err))
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func readLines(r io.Reader) []string {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

var errTurnFailed = errors.New("server reported an error")

// tester 驱动一个会话：发送文档，然后逐个提问并打印流式回答。
type tester struct {
	conn    *websocket.Conn
	out     io.Writer
	timeout time.Duration
	logger  *zap.Logger
}

func (p *tester) run(ctx context.Context, doc string, questions []string) error {
	if err := p.conn.WriteMessage(websocket.TextMessage, []byte(doc)); err != nil {
		return fmt.Errorf("send document: %w", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, p.timeout)
	msg, err := p.read(initCtx)
	cancel()
	if err != nil {
		return err
	}
	if msg.Type != chat.TypeInit && msg.Type != chat.TypeSummary {
		return fmt.Errorf("expected init, got %s %q", msg.Type, msg.Message)
	}
	p.logger.Debug("document accepted", zap.Int("bytes", len(doc)))

	failed := 0
	for _, q := range questions {
		if err := p.ask(ctx, q); err != nil {
			if !errors.Is(err, errTurnFailed) {
				return err
			}
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d questions failed", failed, len(questions))
	}
	return nil
}

// ask 发送一个问题并读完整个回答；p.timeout 覆盖整个回答而不是单帧。
func (p *tester) ask(ctx context.Context, question string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.conn.WriteMessage(websocket.TextMessage, []byte(question)); err != nil {
		return fmt.Errorf("send question: %w", err)
	}

	started := time.Now()
	fmt.Fprintf(p.out, "> %s\n", question)
	for {
		msg, err := p.read(ctx)
		if err != nil {
			return err
		}

		switch {
		case msg.Sender == chat.SenderYou:
			// 服务端回显
		case msg.Type == chat.TypeStart:
		case msg.Type == chat.TypeStream:
			fmt.Fprint(p.out, msg.Message)
		case msg.Type == chat.TypeEnd:
			fmt.Fprintln(p.out)
			p.logger.Debug("answer complete", zap.Duration("elapsed", time.Since(started)))
			return nil
		case msg.Type == chat.TypeError:
			fmt.Fprintf(p.out, "\n! %s\n", msg.Message)
			return errTurnFailed
		}
	}
}

// read 读取一帧，最迟到 ctx 的截止时间。
func (p *tester) read(ctx context.Context) (chat.Message, error) {
	deadline, _ := ctx.Deadline()
	_ = p.conn.SetReadDeadline(deadline)

	var msg chat.Message
	if err := p.conn.ReadJSON(&msg); err != nil {
		return chat.Message{}, fmt.Errorf("read frame: %w", err)
	}
	return msg, nil
}
