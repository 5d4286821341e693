package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pomelo/internal/config"
	"pomelo/internal/generation"
	"pomelo/internal/model"
	"pomelo/internal/pkg/abort"
	"pomelo/internal/pkg/id"
	"pomelo/internal/pkg/logger"
	"pomelo/internal/prompt"
)

// 下发给后端的消息列表安全阀，与 Prompt Builder 自身的截断无关
const (
	maxPayloadTurns = 5    // 最多下发的轮次数
	maxPayloadChars = 1000 // 单条消息下发的字符上限
)

// 回答开头可能回显的起始标记
const startOfTextToken = "<|startoftext|>"
const endOfTextToken = "<|endoftext|>"

// ErrModelNotAvailable 对话引用的模型已不在配置中
var ErrModelNotAvailable = errors.New("model not available anymore")

// ConversationStore 轮次控制器需要的数据访问能力
type ConversationStore interface {
	ReplaceMessages(ctx context.Context, id string, messages []model.Message, title string) error
}

// Generator 生成后端调用
type Generator interface {
	OpenStream(ctx context.Context, messages []model.PromptMessage, preprompt string) (io.ReadCloser, error)
	Summarize(ctx context.Context, text string) (string, error)
}

// SearchRunner 联网搜索子流水线
type SearchRunner interface {
	Run(ctx context.Context, promptText string, emit func(model.MessageUpdate)) *model.WebSearch
}

// ChatService 轮次控制器
// 状态机：STARTED → [SEARCHING] → PROMPTING → STREAMING →
// FINALIZED / CANCELLED / FAILED
type ChatService struct {
	store  ConversationStore
	aborts abort.Store
	search SearchRunner // 可以为 nil（未配置联网搜索）

	models map[string]*config.ModelConfig
	gens   map[string]Generator

	defaultTitle string
	autoTitle    bool
}

// NewChatService 创建轮次控制器
func NewChatService(cfg *config.Config, store ConversationStore, aborts abort.Store, search SearchRunner) *ChatService {
	s := &ChatService{
		store:        store,
		aborts:       aborts,
		search:       search,
		models:       make(map[string]*config.ModelConfig, len(cfg.Models)),
		gens:         make(map[string]Generator, len(cfg.Models)),
		defaultTitle: cfg.Chat.DefaultTitle,
		autoTitle:    cfg.Chat.AutoTitle,
	}
	for i := range cfg.Models {
		m := &cfg.Models[i]
		s.models[m.Name] = m
		s.gens[m.Name] = generation.NewClient(m)
	}
	return s
}

// Stop 记录停止生成信号，进行中的轮次在下一个片段到达时感知
func (s *ChatService) Stop(ctx context.Context, conversationID string) error {
	return s.aborts.Signal(ctx, conversationID, time.Now())
}

// StreamTurn 执行一个生成轮次，进度事件通过返回的 channel 推送
// channel 无缓冲：调用方消费慢会阻塞读取循环（除单个片段外无内部缓冲）
func (s *ChatService) StreamTurn(ctx context.Context, conv *model.Conversation, req *model.GenerateRequest) (<-chan model.MessageUpdate, error) {
	mcfg, ok := s.models[conv.Model]
	if !ok {
		return nil, ErrModelNotAvailable
	}
	gen := s.gens[conv.Model]

	ch := make(chan model.MessageUpdate)
	go s.runTurn(ctx, ch, conv, req, gen, mcfg)
	return ch, nil
}

func (s *ChatService) runTurn(
	ctx context.Context,
	ch chan<- model.MessageUpdate,
	conv *model.Conversation,
	req *model.GenerateRequest,
	gen Generator,
	mcfg *config.ModelConfig,
) {
	defer close(ch)

	convID := conv.ID.Hex()
	promptedAt := time.Now()
	defer func() {
		_ = s.aborts.Clear(context.Background(), convID)
	}()

	turnLog := logger.With("chat").With().Str("conversation_id", convID).Logger()

	// 非 stream 事件累积为消息的 updates 日志
	// 搜索阶段会从并发的抓取 goroutine 里上报进度，追加要加锁
	var updatesMu sync.Mutex
	var updates []model.MessageUpdate
	emit := func(u model.MessageUpdate) {
		if u.Type != model.UpdateTypeStream {
			updatesMu.Lock()
			updates = append(updates, u)
			updatesMu.Unlock()
		}
		select {
		case ch <- u:
		case <-ctx.Done():
		}
	}

	messages := buildTurnMessages(conv.Messages, req)

	emit(model.StatusUpdate(model.StatusStarted))

	// SEARCHING：失败只降级，轮次继续
	var ws *model.WebSearch
	if req.WebSearch && s.search != nil {
		ws = s.search.Run(ctx, req.Inputs, emit)
	}

	// PROMPTING
	promptText := prompt.Build(prompt.Options{
		Messages:  toPromptMessages(messages),
		Preprompt: mcfg.Preprompt,
		WebSearch: ws,
		Truncate:  mcfg.Parameters.Truncate,
		Render:    prompt.DefaultRenderer(mcfg.Prompt),
	})

	// 搜索轮次把历史折叠成渲染好的单条提示词
	payload := toPromptMessages(messages)
	if req.WebSearch {
		payload = []model.PromptMessage{{From: model.MessageFromUser, Content: promptText}}
	}
	if len(payload) > maxPayloadTurns {
		payload = payload[len(payload)-maxPayloadTurns:]
	}
	for i := range payload {
		payload[i].Content = truncateChars(payload[i].Content, maxPayloadChars)
	}

	// STREAMING：握手阶段有重试，字节开始流动后不再重试
	body, err := gen.OpenStream(ctx, payload, mcfg.Preprompt)
	if err != nil {
		turnLog.Error().Err(err).Msg("failed to open generation stream")
		s.saveRaw(convID, conv.Title, messages, updates, turnLog)
		return
	}
	defer body.Close()

	var fullText strings.Builder
	assistantCreated := false
	buf := make([]byte, 4096)

	for {
		// 调用方断连：原样保存当前消息状态，不做收尾清理
		if ctx.Err() != nil {
			turnLog.Warn().Msg("request aborted, saving messages as-is")
			s.saveRaw(convID, conv.Title, messages, updates, turnLog)
			return
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			chunk := string(buf[:n])
			fullText.WriteString(chunk)
			emit(model.StreamUpdate(chunk))

			if !assistantCreated {
				// 首个片段：创建 assistant 消息，只在此处去一次前导空白
				now := time.Now()
				messages = append(messages, model.Message{
					ID:        responseID(req),
					From:      model.MessageFromAssistant,
					Content:   strings.TrimLeftFunc(chunk, isSpace),
					WebSearch: ws,
					CreatedAt: now,
					UpdatedAt: now,
				})
				assistantCreated = true
			} else {
				// 每个片段轮询一次取消信号
				if at, ok := s.aborts.Last(ctx, convID); ok && at.After(promptedAt) {
					turnLog.Info().Msg("generation cancelled")
					last := messages[len(messages)-1].Content
					s.finishTurn(ctx, conv, req, messages, updates, last, promptText, mcfg, gen, emit, turnLog)
					return
				}
				messages[len(messages)-1].Content += chunk
			}
		}

		if readErr == io.EOF {
			s.finishTurn(ctx, conv, req, messages, updates, fullText.String(), promptText, mcfg, gen, emit, turnLog)
			return
		}
		if readErr != nil {
			// FAILED：记录日志并尽力保存，调用方看到的是没有收尾事件的流
			turnLog.Error().Err(readErr).Msg("generation stream read failed")
			s.saveRaw(convID, conv.Title, messages, updates, turnLog)
			return
		}
	}
}

// finishTurn FINALIZED / CANCELLED 共用的收尾：清理回答文本、
// 整体落库、推送 finalAnswer
func (s *ChatService) finishTurn(
	ctx context.Context,
	conv *model.Conversation,
	req *model.GenerateRequest,
	messages []model.Message,
	updates []model.MessageUpdate,
	generated string,
	promptText string,
	mcfg *config.ModelConfig,
	gen Generator,
	emit func(model.MessageUpdate),
	turnLog zerolog.Logger,
) {
	cleaned := cleanGeneratedText(generated, promptText, mcfg)

	if len(messages) > 0 {
		last := &messages[len(messages)-1]
		if last.From == model.MessageFromAssistant {
			last.Content = cleaned
			last.Updates = updates
			last.UpdatedAt = time.Now()
		}
	}

	title := conv.Title
	if s.autoTitle && (title == "" || title == s.defaultTitle) {
		if t, err := gen.Summarize(ctx, req.Inputs); err == nil && t != "" {
			title = t
		}
	}

	// 保存不依赖请求 context，断连后也要落库
	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.ReplaceMessages(saveCtx, conv.ID.Hex(), messages, title); err != nil {
		turnLog.Error().Err(err).Msg("failed to save conversation")
	}

	emit(model.FinalAnswerUpdate(cleaned))
}

// saveRaw 兜底保存：不清理文本、不推送收尾事件
func (s *ChatService) saveRaw(convID, title string, messages []model.Message, updates []model.MessageUpdate, turnLog zerolog.Logger) {
	if len(messages) > 0 {
		last := &messages[len(messages)-1]
		if last.From == model.MessageFromAssistant {
			last.Updates = updates
		}
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.ReplaceMessages(saveCtx, convID, messages, title); err != nil {
		turnLog.Error().Err(err).Msg("failed to save conversation")
	}
}

// buildTurnMessages 计算本轮次的消息列表
// 重试：定位到原消息 id，丢弃其后的所有消息并用新内容替换；
// 否则在末尾追加新的用户消息
func buildTurnMessages(existing []model.Message, req *model.GenerateRequest) []model.Message {
	now := time.Now()

	if req.IsRetry && req.ID != "" {
		idx := len(existing)
		for i := range existing {
			if existing[i].ID == req.ID {
				idx = i
				break
			}
		}
		out := make([]model.Message, 0, idx+1)
		out = append(out, existing[:idx]...)
		return append(out, model.Message{
			ID:        req.ID,
			From:      model.MessageFromUser,
			Content:   req.Inputs,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	msgID := req.ID
	if msgID == "" {
		msgID = id.New()
	}
	out := make([]model.Message, 0, len(existing)+1)
	out = append(out, existing...)
	return append(out, model.Message{
		ID:        msgID,
		From:      model.MessageFromUser,
		Content:   req.Inputs,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// responseID assistant 消息的 id：优先用调用方给的 response_id
func responseID(req *model.GenerateRequest) string {
	if req.ResponseID != "" {
		return req.ResponseID
	}
	return id.New()
}

// cleanGeneratedText 收尾清理：去掉回显的提示词前缀、起始/分隔/停止
// 标记和尾部空白
func cleanGeneratedText(generated, promptText string, mcfg *config.ModelConfig) string {
	if promptText != "" {
		generated = strings.TrimPrefix(generated, promptText)
	}

	sep := mcfg.Prompt.SepToken
	if sep == "" {
		sep = endOfTextToken
	}
	generated = strings.TrimPrefix(generated, startOfTextToken)
	generated = strings.TrimSuffix(generated, sep)
	generated = strings.TrimRightFunc(generated, isSpace)

	stops := append(append([]string{}, mcfg.Parameters.Stop...), endOfTextToken)
	for _, stop := range stops {
		if stop != "" && strings.HasSuffix(generated, stop) {
			generated = strings.TrimRightFunc(strings.TrimSuffix(generated, stop), isSpace)
		}
	}

	return generated
}

func toPromptMessages(messages []model.Message) []model.PromptMessage {
	out := make([]model.PromptMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, model.PromptMessage{From: m.From, Content: m.Content})
	}
	return out
}

func truncateChars(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
