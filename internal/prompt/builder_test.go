package prompt

import (
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"pomelo/internal/config"
	"pomelo/internal/model"
)

func TestDefaultRenderer(t *testing.T) {
	Convey("DefaultRenderer 渲染测试", t, func() {
		history := []model.PromptMessage{
			{From: model.MessageFromUser, Content: "hello"},
			{From: model.MessageFromAssistant, Content: "hi"},
			{From: model.MessageFromUser, Content: "how are you"},
		}

		Convey("未配置标记时使用缺省标记", func() {
			render := DefaultRenderer(config.PromptTokens{})
			out := render(history, "")

			So(out, ShouldEqual,
				"<|prompter|>hello<|endoftext|>"+
					"<|assistant|>hi<|endoftext|>"+
					"<|prompter|>how are you<|endoftext|>"+
					"<|assistant|>")
		})

		Convey("preprompt 渲染在最前面并带分隔符", func() {
			render := DefaultRenderer(config.PromptTokens{})
			out := render(history, "Be helpful.")

			So(out, ShouldStartWith, "Be helpful.<|endoftext|>")
		})

		Convey("使用模型自己的标记", func() {
			render := DefaultRenderer(config.PromptTokens{
				UserToken:      "<user>",
				AssistantToken: "<bot>",
				SepToken:       "</s>",
			})
			out := render(history[:1], "")

			So(out, ShouldEqual, "<user>hello</s><bot>")
		})
	})
}

func TestBuild(t *testing.T) {
	Convey("Build 提示词构建测试", t, func() {
		history := []model.PromptMessage{
			{From: model.MessageFromUser, Content: "first question"},
			{From: model.MessageFromAssistant, Content: "first answer"},
			{From: model.MessageFromUser, Content: "what is a pomelo"},
		}

		Convey("普通轮次渲染完整历史", func() {
			out := Build(Options{Messages: history, Truncate: 1000})

			So(out, ShouldContainSubstring, "first question")
			So(out, ShouldContainSubstring, "first answer")
			So(out, ShouldContainSubstring, "what is a pomelo")
		})

		Convey("有搜索上下文时历史被替换成单条合成消息", func() {
			ws := &model.WebSearch{
				Context:   "A pomelo is a citrus fruit",
				CreatedAt: time.Now(),
			}
			out := Build(Options{Messages: history, WebSearch: ws, Truncate: 1000})

			So(out, ShouldContainSubstring, `Answer the query "what is a pomelo"`)
			So(out, ShouldContainSubstring, "A pomelo is a citrus fruit")
			// 历史消息不再出现
			So(out, ShouldNotContainSubstring, "first question")
			So(out, ShouldNotContainSubstring, "first answer")
		})

		Convey("搜索上下文为空时不替换历史", func() {
			ws := &model.WebSearch{Context: ""}
			out := Build(Options{Messages: history, WebSearch: ws, Truncate: 1000})

			So(out, ShouldContainSubstring, "first question")
		})

		Convey("渲染结果按词数截断", func() {
			out := Build(Options{
				Messages: []model.PromptMessage{{From: model.MessageFromUser, Content: "a b c d e f"}},
				Truncate: 3,
			})

			So(len(strings.Split(out, " ")), ShouldEqual, 3)
		})
	})
}

func TestTruncateWords(t *testing.T) {
	Convey("TruncateWords 词数截断测试", t, func() {
		Convey("保留末尾 n 个词", func() {
			So(TruncateWords("a b c d e", 2), ShouldEqual, "d e")
		})

		Convey("词数不足时原样返回", func() {
			So(TruncateWords("a b c", 10), ShouldEqual, "a b c")
		})

		Convey("n 为 0 或负数返回空串", func() {
			So(TruncateWords("a b c", 0), ShouldEqual, "")
			So(TruncateWords("a b c", -1), ShouldEqual, "")
		})

		Convey("空串截断还是空串", func() {
			So(TruncateWords("", 5), ShouldEqual, "")
		})
	})
}
