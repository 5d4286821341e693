package websearch

import (
	"context"
	"encoding/json"
	"fmt"

	"pomelo/internal/pkg/httpclient"
)

// 相似度筛选阈值，低于该值的句子被丢弃
const similarityThreshold = 0.8

type similarityRequest struct {
	Query     string   `json:"query"`
	Sentences []string `json:"sentences"`
	Threshold float64  `json:"threshold"`
}

type similarityResponse struct {
	Result []string `json:"result"`
}

// SimilarityClient 句子相似度服务客户端
// POST {query, sentences, threshold} → {result: 按相关度排序的句子}
type SimilarityClient struct {
	url  string
	http *httpclient.Client
}

// NewSimilarityClient 创建相似度客户端
func NewSimilarityClient(serviceURL string) *SimilarityClient {
	return &SimilarityClient{
		url:  serviceURL,
		http: httpclient.New(),
	}
}

// Rank 返回与 query 相似度达标的句子，按相关度降序
func (c *SimilarityClient) Rank(ctx context.Context, query string, sentences []string) ([]string, error) {
	resp, err := c.http.PostJSON(ctx, c.url, similarityRequest{
		Query:     query,
		Sentences: sentences,
		Threshold: similarityThreshold,
	}, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed similarityResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode similarity response: %w", err)
	}

	return parsed.Result, nil
}
