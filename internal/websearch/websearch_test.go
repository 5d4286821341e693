package websearch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"pomelo/internal/model"
)

type fakeCompleter struct {
	out string
	err error
}

func (f *fakeCompleter) Complete(_ context.Context, _, _ string) (string, error) {
	return f.out, f.err
}

type fakeSearcher struct {
	results []OrganicResult
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, _ string) ([]OrganicResult, error) {
	return f.results, f.err
}

// fakeRanker 回显前 keep 条句子，模拟相似度筛选
type fakeRanker struct {
	keep         int
	err          error
	mu           sync.Mutex
	gotQuery     string
	gotSentences []string
}

func (f *fakeRanker) Rank(_ context.Context, query string, sentences []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotQuery = query
	f.gotSentences = sentences
	if f.err != nil {
		return nil, f.err
	}
	keep := f.keep
	if keep > len(sentences) {
		keep = len(sentences)
	}
	return sentences[:keep], nil
}

type fakeFetcher struct {
	pages    map[string]string
	failAll  bool
	failLink map[string]bool
}

func (f *fakeFetcher) FetchText(_ context.Context, pageURL string) (string, error) {
	if f.failAll || f.failLink[pageURL] {
		return "", errors.New("fetch failed")
	}
	return f.pages[pageURL], nil
}

// updateSink 并发安全的事件收集器（抓取阶段会并发上报进度）
type updateSink struct {
	mu      sync.Mutex
	updates []model.MessageUpdate
}

func (s *updateSink) emit(u model.MessageUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
}

func (s *updateSink) errorUpdates() []model.MessageUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.MessageUpdate
	for _, u := range s.updates {
		if u.Type == model.UpdateTypeWebSearch && u.MessageType == model.WebSearchMessageError {
			out = append(out, u)
		}
	}
	return out
}

func (s *updateSink) find(message string) (model.MessageUpdate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.updates {
		if u.Message == message {
			return u, true
		}
	}
	return model.MessageUpdate{}, false
}

func TestOrchestratorRun(t *testing.T) {
	Convey("联网搜索编排器测试", t, func() {
		ctx := context.Background()

		Convey("完整流水线", func() {
			// 12 条结果，其中 2 条视频站点被过滤，剩 10 条
			var results []OrganicResult
			pages := map[string]string{}
			for i := 0; i < 10; i++ {
				link := fmt.Sprintf("https://example.com/page-%d", i)
				results = append(results, OrganicResult{Title: fmt.Sprintf("Page %d", i), Link: link})
				pages[link] = fmt.Sprintf("Fact number %d about pomelos. Extra detail %d here.", i, i)
			}
			results = append(results,
				OrganicResult{Title: "Video", Link: "https://www.youtube.com/watch?v=1"},
				OrganicResult{Title: "Video 2", Link: "https://youtube.com/watch?v=2"},
			)

			ranker := &fakeRanker{keep: 3}
			sink := &updateSink{}
			o := New(
				&fakeCompleter{out: "pomelo facts"},
				&fakeSearcher{results: results},
				ranker,
				&fakeFetcher{pages: pages},
			)

			ws := o.Run(ctx, "tell me about pomelos", sink.emit)

			Convey("查询由生成端点改写", func() {
				So(ws.SearchQuery, ShouldEqual, "pomelo facts")

				u, ok := sink.find("Generated search query")
				So(ok, ShouldBeTrue)
				So(u.Args, ShouldResemble, []string{"pomelo facts"})
			})

			Convey("结果截断到上限且不含视频站点", func() {
				So(len(ws.Results), ShouldBeLessThanOrEqualTo, maxPagesScrape)
				for _, r := range ws.Results {
					So(r.Link, ShouldNotContainSubstring, "youtube.com")
					So(r.Hostname, ShouldEqual, "example.com")
				}
			})

			Convey("上下文有界且有来源", func() {
				So(ws.Context, ShouldNotBeEmpty)
				So(len([]rune(ws.Context)), ShouldBeLessThanOrEqualTo, maxContextChars)
				So(len(ws.ContextSources), ShouldBeGreaterThan, 0)

				// 来源按链接去重
				seen := map[string]bool{}
				for _, s := range ws.ContextSources {
					So(seen[s.Link], ShouldBeFalse)
					seen[s.Link] = true
				}
			})

			Convey("只有前几个页面参与筛选", func() {
				joined := strings.Join(ranker.gotSentences, " ")
				So(joined, ShouldContainSubstring, "Fact number 0")
				So(joined, ShouldNotContainSubstring, "Fact number 9")
			})

			Convey("相似度查询用的是原始输入", func() {
				So(ranker.gotQuery, ShouldEqual, "tell me about pomelos")
			})

			Convey("没有错误事件，末尾有来源事件", func() {
				So(sink.errorUpdates(), ShouldBeEmpty)

				u, ok := sink.find("sources")
				So(ok, ShouldBeTrue)
				So(u.MessageType, ShouldEqual, model.WebSearchMessageSources)
				So(len(u.Sources), ShouldEqual, len(ws.ContextSources))
			})
		})

		Convey("搜索无结果时上报错误事件但仍返回 WebSearch", func() {
			sink := &updateSink{}
			o := New(
				&fakeCompleter{out: "query"},
				&fakeSearcher{},
				&fakeRanker{keep: 1},
				&fakeFetcher{},
			)

			ws := o.Run(ctx, "anything", sink.emit)

			So(ws, ShouldNotBeNil)
			So(ws.Context, ShouldBeEmpty)

			errs := sink.errorUpdates()
			So(len(errs), ShouldEqual, 1)
			So(errs[0].Message, ShouldEqual, "An error occurred")
			So(errs[0].Args[0], ShouldContainSubstring, "no results")
		})

		Convey("结果全是视频站点等价于无结果", func() {
			sink := &updateSink{}
			o := New(
				&fakeCompleter{out: "query"},
				&fakeSearcher{results: []OrganicResult{
					{Title: "v1", Link: "https://youtube.com/a"},
					{Title: "v2", Link: "https://www.youtube.com/b"},
				}},
				&fakeRanker{keep: 1},
				&fakeFetcher{},
			)

			ws := o.Run(ctx, "anything", sink.emit)

			So(ws.Results, ShouldBeEmpty)
			So(len(sink.errorUpdates()), ShouldEqual, 1)
		})

		Convey("单页抓取失败不影响整体", func() {
			sink := &updateSink{}
			o := New(
				&fakeCompleter{out: "query"},
				&fakeSearcher{results: []OrganicResult{
					{Title: "bad", Link: "https://example.com/bad"},
					{Title: "good", Link: "https://example.com/good"},
				}},
				&fakeRanker{keep: 2},
				&fakeFetcher{
					pages:    map[string]string{"https://example.com/good": "Useful sentence one. Useful sentence two."},
					failLink: map[string]bool{"https://example.com/bad": true},
				},
			)

			ws := o.Run(ctx, "anything", sink.emit)

			So(sink.errorUpdates(), ShouldBeEmpty)
			So(ws.Context, ShouldContainSubstring, "Useful sentence")
		})

		Convey("所有页面都抓取失败时上报无内容错误", func() {
			sink := &updateSink{}
			o := New(
				&fakeCompleter{out: "query"},
				&fakeSearcher{results: []OrganicResult{
					{Title: "a", Link: "https://example.com/a"},
					{Title: "b", Link: "https://example.com/b"},
				}},
				&fakeRanker{keep: 1},
				&fakeFetcher{failAll: true},
			)

			ws := o.Run(ctx, "anything", sink.emit)

			So(ws.Context, ShouldBeEmpty)
			errs := sink.errorUpdates()
			So(len(errs), ShouldEqual, 1)
			So(errs[0].Args[0], ShouldContainSubstring, "no text found")
		})

		Convey("查询生成为空白时回退到原始输入", func() {
			sink := &updateSink{}
			o := New(
				&fakeCompleter{out: "   \n"},
				&fakeSearcher{results: []OrganicResult{{Title: "p", Link: "https://example.com/p"}}},
				&fakeRanker{keep: 1},
				&fakeFetcher{pages: map[string]string{"https://example.com/p": "Some text."}},
			)

			ws := o.Run(ctx, "raw user input", sink.emit)

			So(ws.SearchQuery, ShouldEqual, "raw user input")
		})

		Convey("查询生成失败时整个搜索降级", func() {
			sink := &updateSink{}
			o := New(
				&fakeCompleter{err: errors.New("backend down")},
				&fakeSearcher{},
				&fakeRanker{keep: 1},
				&fakeFetcher{},
			)

			ws := o.Run(ctx, "anything", sink.emit)

			So(ws.SearchQuery, ShouldBeEmpty)
			errs := sink.errorUpdates()
			So(len(errs), ShouldEqual, 1)
			So(errs[0].Args[0], ShouldContainSubstring, "generate query")
		})
	})
}

func TestChunkText(t *testing.T) {
	Convey("文本切块测试", t, func() {
		Convey("按固定长度切块", func() {
			s := strings.Repeat("a", 1200)
			chunks := chunkText(s, 512)

			So(len(chunks), ShouldEqual, 3)
			So(len(chunks[0]), ShouldEqual, 512)
			So(len(chunks[1]), ShouldEqual, 512)
			So(len(chunks[2]), ShouldEqual, 176)
		})

		Convey("按 rune 而不是字节计数", func() {
			s := strings.Repeat("字", 600)
			chunks := chunkText(s, 512)

			So(len(chunks), ShouldEqual, 2)
			So(len([]rune(chunks[0])), ShouldEqual, 512)
		})

		Convey("空文本返回空", func() {
			So(chunkText("", 512), ShouldBeEmpty)
		})
	})
}

func TestTruncateRunes(t *testing.T) {
	Convey("rune 截断测试", t, func() {
		Convey("超长截断", func() {
			So(truncateRunes("abcdef", 3), ShouldEqual, "abc")
		})

		Convey("不足上限原样返回", func() {
			So(truncateRunes("abc", 10), ShouldEqual, "abc")
		})

		Convey("多字节字符按 rune 截断", func() {
			So(truncateRunes("一二三四", 2), ShouldEqual, "一二")
		})
	})
}
