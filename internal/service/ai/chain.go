package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/docchat/internal/model/chat"
	"github.com/zhouzirui/docchat/internal/service/index"
)

var (
	ErrNoChatModel = errors.New("ai: chat model is required")
	ErrNoBuilder   = errors.New("ai: index builder is required")
)

// Chain answers questions about one indexed document.
type Chain interface {
	// Ask starts answering question asynchronously. Callers drain
	// Run.Events and then read Run.Wait; cancelling ctx aborts the run.
	Ask(ctx context.Context, question string, history []chat.Turn) *Run
}

// Options tune the chain service.
type Options struct {
	// Tracing logs every chain component run.
	Tracing bool
}

// Service builds conversational retrieval chains over pasted documents.
type Service struct {
	builder  *index.Builder
	condense compose.Runnable[map[string]any, *schema.Message]
	answer   compose.Runnable[map[string]any, *schema.Message]
	runOpts  []compose.Option
	logger   *zap.Logger
}

// NewService compiles the condense and answer chains once; they are shared by
// every session and only the retriever differs per chain.
func NewService(ctx context.Context, chatModel model.ChatModel, builder *index.Builder, opts Options, logger *zap.Logger) (*Service, error) {
	if chatModel == nil {
		return nil, ErrNoChatModel
	}
	if builder == nil {
		return nil, ErrNoBuilder
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	condenseTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(condenseSystemPrompt),
		schema.UserMessage(condenseUserPrompt),
	)
	condenseChain := compose.NewChain[map[string]any, *schema.Message]()
	condenseChain.AppendChatTemplate(condenseTemplate)
	condenseChain.AppendChatModel(chatModel)

	condense, err := condenseChain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile condense chain: %w", err)
	}

	answerTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(answerSystemPrompt),
		schema.UserMessage(answerUserPrompt),
	)
	answerChain := compose.NewChain[map[string]any, *schema.Message]()
	answerChain.AppendChatTemplate(answerTemplate)
	answerChain.AppendChatModel(chatModel)

	answer, err := answerChain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile answer chain: %w", err)
	}

	svc := &Service{
		builder:  builder,
		condense: condense,
		answer:   answer,
		logger:   logger,
	}
	if opts.Tracing {
		svc.runOpts = append(svc.runOpts, compose.WithCallbacks(newTraceHandler(logger)))
	}
	return svc, nil
}

// NewChain indexes docs and returns a chain bound to that index.
func (s *Service) NewChain(ctx context.Context, docs []*schema.Document) (Chain, error) {
	store, err := s.builder.Build(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("failed to build index: %w", err)
	}

	s.logger.Debug("index built", zap.Int("chunks", store.Len()))
	return &conversationalChain{svc: s, retriever: store}, nil
}

type conversationalChain struct {
	svc       *Service
	retriever retriever.Retriever
}

func (c *conversationalChain) Ask(ctx context.Context, question string, history []chat.Turn) *Run {
	return Start(ctx, func(ctx context.Context, emit Emit) (string, error) {
		return c.answerQuestion(ctx, emit, question, history)
	})
}

func (c *conversationalChain) answerQuestion(ctx context.Context, emit Emit, question string, history []chat.Turn) (string, error) {
	standalone := question
	if len(history) > 0 {
		condensed, err := c.condenseQuestion(ctx, question, history)
		if err != nil {
			return "", err
		}
		standalone = condensed
		if err := emit(Event{Kind: EventQuestion, Text: standalone}); err != nil {
			return "", err
		}
	}

	docs, err := c.retriever.Retrieve(ctx, standalone)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve context: %w", err)
	}

	input := map[string]any{
		"context":  formatContext(docs),
		"question": standalone,
	}

	stream, err := c.svc.answer.Stream(ctx, input, c.svc.runOpts...)
	if err != nil {
		return "", fmt.Errorf("failed to stream answer: %w", err)
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 16)
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", fmt.Errorf("answer stream recv failed: %w", recvErr)
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			if err := emit(Event{Kind: EventToken, Text: chunk.Content}); err != nil {
				return "", err
			}
		}
	}

	// A stream that ended because ctx was cancelled is not an answer.
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", nil
	}

	merged, err := schema.ConcatMessages(chunks)
	if err != nil {
		return "", fmt.Errorf("concat answer chunks failed: %w", err)
	}
	return merged.Content, nil
}

func (c *conversationalChain) condenseQuestion(ctx context.Context, question string, history []chat.Turn) (string, error) {
	msg, err := c.svc.condense.Invoke(ctx, map[string]any{
		"chat_history": formatHistory(history),
		"question":     question,
	}, c.svc.runOpts...)
	if err != nil {
		return "", fmt.Errorf("failed to condense question: %w", err)
	}

	condensed := ""
	if msg != nil {
		condensed = strings.TrimSpace(msg.Content)
	}
	if condensed == "" {
		return question, nil
	}
	return condensed, nil
}
