package websearch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const defaultFetchTimeout = 10 * time.Second

// HTMLFetcher 抓取页面并抽取可见文本
// 抽取逻辑只做最朴素的标签剥离，不理解页面结构
type HTMLFetcher struct {
	http *http.Client
}

// NewHTMLFetcher 创建页面抓取器
func NewHTMLFetcher(timeout time.Duration) *HTMLFetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &HTMLFetcher{
		http: &http.Client{Timeout: timeout},
	}
}

// FetchText 抓取页面并返回空白折叠后的纯文本
func (f *HTMLFetcher) FetchText(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; pomelo/1.0)")

	resp, err := f.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, pageURL)
	}

	root, err := html.Parse(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var sb strings.Builder
	collectText(root, &sb)

	// 折叠连续空白
	return strings.Join(strings.Fields(sb.String()), " "), nil
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "head", "iframe":
			return
		}
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}
