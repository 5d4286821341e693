// Package generation 封装对推理后端的出站调用。
// 后端协议：POST {messages, preprompt, parameters}，响应体是
// 分块传输的纯文本流；部分端点要求 POST 前先 GET /reset 预热。
package generation

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"pomelo/internal/config"
	"pomelo/internal/endpoint"
	"pomelo/internal/model"
	"pomelo/internal/pkg/httpclient"
)

// Client 单个模型的生成客户端
type Client struct {
	model *config.ModelConfig
	http  *httpclient.Client
}

// NewClient 创建生成客户端
func NewClient(modelCfg *config.ModelConfig) *Client {
	return &Client{
		model: modelCfg,
		http:  httpclient.New(),
	}
}

// Model 返回客户端绑定的模型配置
func (c *Client) Model() *config.ModelConfig {
	return c.model
}

type generateRequest struct {
	Messages   []model.PromptMessage `json:"messages"`
	Preprompt  string                `json:"preprompt"`
	Parameters generateParams        `json:"parameters"`
}

type generateParams struct {
	config.GenerationParams
	ReturnFullText bool `json:"return_full_text"`
}

// OpenStream 打开一次流式生成
// 端点选择和 POST 握手走重试语义；返回后的字节流读取不再重试，
// 由调用方逐块消费并负责关闭
func (c *Client) OpenStream(ctx context.Context, messages []model.PromptMessage, preprompt string) (io.ReadCloser, error) {
	ep, err := endpoint.Select(c.model)
	if err != nil {
		return nil, err
	}

	if ep.Reset {
		// 预热失败不阻塞生成
		if err := c.http.Get(ctx, strings.TrimSuffix(ep.URL, "/")+"/reset"); err != nil {
			log.Warn().Err(err).Str("url", ep.URL).Msg("endpoint reset failed")
		}
	}

	var header http.Header
	if ep.Token != "" {
		header = http.Header{}
		header.Set("Authorization", "Bearer "+ep.Token)
	}

	payload := generateRequest{
		Messages:  messages,
		Preprompt: preprompt,
		Parameters: generateParams{
			GenerationParams: c.model.Parameters,
			ReturnFullText:   false,
		},
	}

	resp, err := c.http.PostJSON(ctx, ep.URL, payload, header)
	if err != nil {
		return nil, err
	}

	return resp.Body, nil
}

// Complete 非流式生成：读完整个响应流后一次性返回
// 搜索查询生成和标题归纳走这里
func (c *Client) Complete(ctx context.Context, promptText, preprompt string) (string, error) {
	body, err := c.OpenStream(ctx, []model.PromptMessage{
		{From: model.MessageFromUser, Content: promptText},
	}, preprompt)
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// Summarize 用三个词归纳文本，用作对话标题
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	out, err := c.Complete(ctx, "Summarize the essence of the following text in three words: "+text, "")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
