package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"pomelo/internal/pkg/httpclient"
)

// OrganicResult 搜索服务返回的单条结果
type OrganicResult struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

type searchResponse struct {
	OrganicResults []OrganicResult `json:"organic_results"`
}

// SearchClient 搜索服务客户端
// 服务以 query 参数接收查询，返回 {organic_results: [{title, link}]}
type SearchClient struct {
	providerURL string
	apiKey      string
	http        *httpclient.Client
}

// NewSearchClient 创建搜索客户端
func NewSearchClient(providerURL, apiKey string) *SearchClient {
	return &SearchClient{
		providerURL: providerURL,
		apiKey:      apiKey,
		http:        httpclient.New(),
	}
}

// Search 执行一次搜索
func (c *SearchClient) Search(ctx context.Context, query string) ([]OrganicResult, error) {
	u, err := url.Parse(c.providerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid provider url: %w", err)
	}

	q := u.Query()
	q.Set("q", query)
	if c.apiKey != "" {
		q.Set("api_key", c.apiKey)
	}
	u.RawQuery = q.Encode()

	resp, err := c.http.Do(ctx, http.MethodGet, u.String(), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	return parsed.OrganicResults, nil
}
