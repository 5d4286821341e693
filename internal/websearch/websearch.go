// Package websearch 实现联网搜索子流水线：
// 生成查询 → 调用搜索服务 → 并发抓取候选页面并切块 →
// 相似度筛选 → 产出有界的上下文串和来源列表。
// 任何阶段失败都只降级（以 error 类型的进度事件上报），不会中断整个轮次。
package websearch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"pomelo/internal/model"
)

const (
	// 搜索结果最多保留的链接数
	maxPagesScrape = 10
	// 参与相似度筛选的页面数（按发起抓取的顺序取前 5 个，而不是前 5 个成功的）
	maxPagesEmbed = 5
	// 单页最多保留的文本块数
	maxChunksPerPage = 100
	// 单个文本块的字符长度
	chunkCharLen = 512
	// 上下文串的字符预算，超出截断
	maxContextChars = 1000
	// 过滤的视频站点
	excludedHost = "youtube.com"
)

var (
	// ErrNoResults 搜索服务没有返回任何结果
	ErrNoResults = errors.New("no results found for this search query")
	// ErrNoContent 抓取后没有任何文本块存活
	ErrNoContent = errors.New("no text found on the first results")
)

// Completer 非流式生成调用（查询生成用）
type Completer interface {
	Complete(ctx context.Context, prompt, preprompt string) (string, error)
}

// Searcher 搜索服务调用
type Searcher interface {
	Search(ctx context.Context, query string) ([]OrganicResult, error)
}

// Ranker 句子相似度筛选调用
type Ranker interface {
	Rank(ctx context.Context, query string, sentences []string) ([]string, error)
}

// PageFetcher 抓取单个页面并抽取纯文本
type PageFetcher interface {
	FetchText(ctx context.Context, pageURL string) (string, error)
}

// Orchestrator 联网搜索编排器
type Orchestrator struct {
	completer Completer
	searcher  Searcher
	ranker    Ranker
	fetcher   PageFetcher
}

// New 创建编排器
func New(completer Completer, searcher Searcher, ranker Ranker, fetcher PageFetcher) *Orchestrator {
	return &Orchestrator{
		completer: completer,
		searcher:  searcher,
		ranker:    ranker,
		fetcher:   fetcher,
	}
}

// sourcedChunk 一个文本块及其来源页面
type sourcedChunk struct {
	source model.WebSearchSource
	text   string
}

// Run 执行一次联网搜索
// 总是返回 WebSearch（失败时字段可能不完整），错误通过 emit 上报
func (o *Orchestrator) Run(ctx context.Context, promptText string, emit func(model.MessageUpdate)) *model.WebSearch {
	now := time.Now()
	ws := &model.WebSearch{
		Prompt:         promptText,
		Results:        []model.WebSearchSource{},
		ContextSources: []model.WebSearchSource{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	appendUpdate := func(message string, args []string, messageType string) {
		if messageType == "" {
			messageType = model.WebSearchMessageUpdate
		}
		emit(model.MessageUpdate{
			Type:        model.UpdateTypeWebSearch,
			MessageType: messageType,
			Message:     message,
			Args:        args,
		})
	}

	if err := o.run(ctx, ws, promptText, appendUpdate, emit); err != nil {
		log.Error().Err(err).Str("query", ws.SearchQuery).Msg("web search failed")
		appendUpdate("An error occurred", []string{err.Error()}, model.WebSearchMessageError)
	}

	ws.UpdatedAt = time.Now()
	return ws
}

func (o *Orchestrator) run(
	ctx context.Context,
	ws *model.WebSearch,
	promptText string,
	appendUpdate func(message string, args []string, messageType string),
	emit func(model.MessageUpdate),
) error {
	// 1. 生成搜索查询
	query, err := o.generateQuery(ctx, promptText)
	if err != nil {
		return fmt.Errorf("generate query: %w", err)
	}
	ws.SearchQuery = query
	appendUpdate("Generated search query", []string{query}, "")

	// 2. 执行搜索，过滤视频站点，截断到上限
	organic, err := o.searcher.Search(ctx, query)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	for _, r := range organic {
		if strings.Contains(r.Link, excludedHost) {
			continue
		}
		ws.Results = append(ws.Results, model.WebSearchSource{
			Title:    r.Title,
			Link:     r.Link,
			Hostname: hostnameOf(r.Link),
		})
	}
	if len(ws.Results) > maxPagesScrape {
		ws.Results = ws.Results[:maxPagesScrape]
	}
	if len(ws.Results) == 0 {
		return ErrNoResults
	}

	// 3. 并发抓取并切块
	appendUpdate("Browsing results", nil, "")
	chunkSets := make([][]sourcedChunk, len(ws.Results))

	g, gctx := errgroup.WithContext(ctx)
	for i := range ws.Results {
		result := ws.Results[i]
		idx := i
		g.Go(func() error {
			text, err := o.fetcher.FetchText(gctx, result.Link)
			if err != nil {
				// 单页失败不影响整体，只是该页不贡献文本块
				log.Warn().Err(err).Str("link", result.Link).Msg("failed to parse webpage")
			} else {
				appendUpdate("Browsing page", []string{result.Link}, "")
			}

			chunks := chunkText(text, chunkCharLen)
			if len(chunks) > maxChunksPerPage {
				chunks = chunks[:maxChunksPerPage]
			}
			recs := make([]sourcedChunk, 0, len(chunks))
			for _, c := range chunks {
				recs = append(recs, sourcedChunk{source: result, text: c})
			}
			chunkSets[idx] = recs
			return nil
		})
	}
	_ = g.Wait()

	// 抓取全部结束后才应用页面数上限：取前 5 个发起过抓取的页面
	if len(chunkSets) > maxPagesEmbed {
		chunkSets = chunkSets[:maxPagesEmbed]
	}
	var paragraphChunks []sourcedChunk
	for _, set := range chunkSets {
		paragraphChunks = append(paragraphChunks, set...)
	}
	if len(paragraphChunks) == 0 {
		return ErrNoContent
	}

	// 4. 相似度筛选，拼装有界上下文
	appendUpdate("Extracting relevant information", nil, "")

	var sentences []string
	sentenceSource := make(map[string]model.WebSearchSource, len(paragraphChunks))
	for _, pc := range paragraphChunks {
		for _, s := range strings.Split(pc.text, ".") {
			sentences = append(sentences, s)
			if _, ok := sentenceSource[s]; !ok {
				sentenceSource[s] = pc.source
			}
		}
	}

	ranked, err := o.ranker.Rank(ctx, promptText, sentences)
	if err != nil {
		return fmt.Errorf("rank sentences: %w", err)
	}

	ws.Context = truncateRunes(strings.Join(ranked, ". "), maxContextChars)

	// 来源按链接去重，保持相关度排序
	seen := make(map[string]bool)
	for _, s := range ranked {
		src, ok := sentenceSource[s]
		if !ok || seen[src.Link] {
			continue
		}
		seen[src.Link] = true
		ws.ContextSources = append(ws.ContextSources, src)
	}

	emit(model.MessageUpdate{
		Type:        model.UpdateTypeWebSearch,
		MessageType: model.WebSearchMessageSources,
		Message:     "sources",
		Sources:     ws.ContextSources,
	})

	return nil
}

// generateQuery 让默认端点把用户输入改写成搜索查询
func (o *Orchestrator) generateQuery(ctx context.Context, promptText string) (string, error) {
	out, err := o.completer.Complete(ctx, "Generate a search query for the following text. "+promptText, "")
	if err != nil {
		return "", err
	}
	query := strings.TrimSpace(out)
	if query == "" {
		query = promptText
	}
	return query, nil
}

func hostnameOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
