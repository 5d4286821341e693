// Package prompt 把对话历史渲染成发给推理后端的单个文本串。
package prompt

import (
	"fmt"
	"strings"

	"pomelo/internal/config"
	"pomelo/internal/model"
)

// 模型未配置时的缺省标记
const (
	defaultUserToken      = "<|prompter|>"
	defaultAssistantToken = "<|assistant|>"
	defaultSepToken       = "<|endoftext|>"
)

// 搜索上下文注入模板：整个历史被替换成这一条合成消息
const webSearchTemplate = `Answer the query "%s" using only facts from the text of the articles below. Do not answer with made-up facts. Answer in detail. Article text: %s`

// Renderer 模型专属的格式化函数：消息列表 + 前置提示 → 文本
// 角色标记和轮次分隔符对构建器不可见
type Renderer func(messages []model.PromptMessage, preprompt string) string

// DefaultRenderer 按模型的角色标记渲染：
//
//	<|prompter|>hello<|endoftext|><|assistant|>hi<|endoftext|><|assistant|>
func DefaultRenderer(tokens config.PromptTokens) Renderer {
	user := tokens.UserToken
	if user == "" {
		user = defaultUserToken
	}
	assistant := tokens.AssistantToken
	if assistant == "" {
		assistant = defaultAssistantToken
	}
	sep := tokens.SepToken
	if sep == "" {
		sep = defaultSepToken
	}

	return func(messages []model.PromptMessage, preprompt string) string {
		var sb strings.Builder
		if preprompt != "" {
			sb.WriteString(preprompt)
			sb.WriteString(sep)
		}
		for _, m := range messages {
			if m.From == model.MessageFromAssistant {
				sb.WriteString(assistant)
			} else {
				sb.WriteString(user)
			}
			sb.WriteString(m.Content)
			sb.WriteString(sep)
		}
		sb.WriteString(assistant)
		return sb.String()
	}
}

// Options 一次构建的输入
type Options struct {
	Messages  []model.PromptMessage
	Preprompt string
	WebSearch *model.WebSearch
	Truncate  int
	Render    Renderer
}

// Build 构建提示词
// 有非空搜索上下文时，历史被替换（不是追加）为单条合成用户消息；
// 渲染结果按空格切分只保留末尾 Truncate 个词（近似 token 截断，
// 必须保持按空格实现）
func Build(opt Options) string {
	messages := opt.Messages

	if opt.WebSearch != nil && opt.WebSearch.Context != "" && len(messages) > 0 {
		last := messages[len(messages)-1]
		messages = []model.PromptMessage{{
			From:    model.MessageFromUser,
			Content: fmt.Sprintf(webSearchTemplate, last.Content, opt.WebSearch.Context),
		}}
	}

	render := opt.Render
	if render == nil {
		render = DefaultRenderer(config.PromptTokens{})
	}

	return TruncateWords(render(messages, opt.Preprompt), opt.Truncate)
}

// TruncateWords 保留末尾 n 个空格分隔的词，n <= 0 返回空串
func TruncateWords(s string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Split(s, " ")
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}
