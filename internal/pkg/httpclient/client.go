package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
)

// DefaultMaxRetries 默认重试上限（总尝试次数）
const DefaultMaxRetries = 3

// MaxRetriesError 重试耗尽
type MaxRetriesError struct {
	Attempts int
	LastErr  error
}

func (e *MaxRetriesError) Error() string {
	return fmt.Sprintf("max retries (%d) exceeded: %v", e.Attempts, e.LastErr)
}

func (e *MaxRetriesError) Unwrap() error {
	return e.LastErr
}

// Client 有界重试的出站 HTTP 客户端
// 传输层错误、非 2xx 响应、2xx 但响应体为空，都算一次失败并立即重试
// （无退避间隔，与上游行为保持一致）。不设置整体超时：流式响应
// 在握手成功后可以任意长时间传输，由调用方 context 控制生命周期
type Client struct {
	http       *http.Client
	maxRetries int
}

// New 创建客户端
func New() *Client {
	return &Client{
		http:       &http.Client{},
		maxRetries: DefaultMaxRetries,
	}
}

// WithMaxRetries 调整重试上限（<=0 时取默认值）
func (c *Client) WithMaxRetries(n int) *Client {
	if n <= 0 {
		n = DefaultMaxRetries
	}
	c.maxRetries = n
	return c
}

// Do 发送请求，失败时立即重试直到耗尽
// 每次尝试都重新构造请求体，不会复用上一次已部分消费的响应；
// 成功时返回未读取的响应，由调用方负责关闭 Body
func (c *Client) Do(ctx context.Context, method, url string, header http.Header, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, err
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Str("url", url).
				Int("attempt", attempt).Int("max_retries", c.maxRetries).
				Msg("request failed, retrying")
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			lastErr = fmt.Errorf("HTTP %d - %s", resp.StatusCode, resp.Status)
			drain(resp)
			log.Warn().Str("url", url).Int("status", resp.StatusCode).
				Int("attempt", attempt).Int("max_retries", c.maxRetries).
				Msg("request failed, retrying")
			continue
		}

		// 2xx 但没有可读响应体也算失败
		if resp.ContentLength == 0 {
			lastErr = fmt.Errorf("response has no body")
			drain(resp)
			log.Warn().Str("url", url).
				Int("attempt", attempt).Int("max_retries", c.maxRetries).
				Msg("empty response body, retrying")
			continue
		}

		return resp, nil
	}

	return nil, &MaxRetriesError{Attempts: c.maxRetries, LastErr: lastErr}
}

// PostJSON 以 JSON 负载发送 POST
func (c *Client) PostJSON(ctx context.Context, url string, payload any, header http.Header) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Type", "application/json")

	return c.Do(ctx, http.MethodPost, url, header, body)
}

// Get 单次 GET，不参与重试（用于 /reset 预热这类尽力而为的调用）
func (c *Client) Get(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
