package endpoint

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"pomelo/internal/config"
)

func TestSelect(t *testing.T) {
	Convey("端点选择测试", t, func() {
		Convey("没有配置端点时返回错误", func() {
			_, err := Select(&config.ModelConfig{Name: "m"})
			So(err, ShouldEqual, ErrNoEndpoints)

			_, err = Select(nil)
			So(err, ShouldEqual, ErrNoEndpoints)
		})

		Convey("单端点总是命中", func() {
			m := &config.ModelConfig{
				Endpoints: []config.EndpointConfig{{URL: "http://a"}},
			}
			for i := 0; i < 10; i++ {
				ep, err := Select(m)
				So(err, ShouldBeNil)
				So(ep.URL, ShouldEqual, "http://a")
			}
		})

		Convey("未配置权重时等价于均匀随机", func() {
			m := &config.ModelConfig{
				Endpoints: []config.EndpointConfig{
					{URL: "http://a"},
					{URL: "http://b"},
				},
			}

			seen := map[string]int{}
			for i := 0; i < 200; i++ {
				ep, err := Select(m)
				So(err, ShouldBeNil)
				seen[ep.URL]++
			}

			So(seen["http://a"], ShouldBeGreaterThan, 0)
			So(seen["http://b"], ShouldBeGreaterThan, 0)
		})

		Convey("权重为 0 的端点按权重 1 处理", func() {
			m := &config.ModelConfig{
				Endpoints: []config.EndpointConfig{
					{URL: "http://a", Weight: 0},
					{URL: "http://b", Weight: 0},
				},
			}

			seen := map[string]int{}
			for i := 0; i < 200; i++ {
				ep, err := Select(m)
				So(err, ShouldBeNil)
				seen[ep.URL]++
			}

			So(len(seen), ShouldEqual, 2)
		})

		Convey("高权重端点被选中的次数明显更多", func() {
			m := &config.ModelConfig{
				Endpoints: []config.EndpointConfig{
					{URL: "http://heavy", Weight: 99},
					{URL: "http://light", Weight: 1},
				},
			}

			seen := map[string]int{}
			for i := 0; i < 500; i++ {
				ep, err := Select(m)
				So(err, ShouldBeNil)
				seen[ep.URL]++
			}

			So(seen["http://heavy"], ShouldBeGreaterThan, seen["http://light"])
		})
	})
}
