package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestDo(t *testing.T) {
	Convey("重试客户端测试", t, func() {
		ctx := context.Background()

		Convey("前两次失败第三次成功", func() {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if atomic.AddInt32(&calls, 1) < 3 {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
				_, _ = w.Write([]byte("ok"))
			}))
			defer srv.Close()

			resp, err := New().Do(ctx, http.MethodGet, srv.URL, nil, nil)
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			data, _ := io.ReadAll(resp.Body)
			So(string(data), ShouldEqual, "ok")
			So(atomic.LoadInt32(&calls), ShouldEqual, 3)
		})

		Convey("持续失败时耗尽重试并返回 MaxRetriesError", func() {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(http.StatusBadGateway)
			}))
			defer srv.Close()

			_, err := New().Do(ctx, http.MethodGet, srv.URL, nil, nil)

			var retriesErr *MaxRetriesError
			So(errors.As(err, &retriesErr), ShouldBeTrue)
			So(retriesErr.Attempts, ShouldEqual, DefaultMaxRetries)
			So(retriesErr.LastErr.Error(), ShouldContainSubstring, "502")
			So(atomic.LoadInt32(&calls), ShouldEqual, DefaultMaxRetries)
		})

		Convey("2xx 但响应体为空也算失败", func() {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				// 不写任何内容，Content-Length 为 0
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			_, err := New().Do(ctx, http.MethodGet, srv.URL, nil, nil)

			var retriesErr *MaxRetriesError
			So(errors.As(err, &retriesErr), ShouldBeTrue)
			So(retriesErr.LastErr.Error(), ShouldContainSubstring, "no body")
			So(atomic.LoadInt32(&calls), ShouldEqual, DefaultMaxRetries)
		})

		Convey("每次尝试都重新发送完整请求体", func() {
			var bodies []string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				data, _ := io.ReadAll(r.Body)
				bodies = append(bodies, string(data))
				if len(bodies) < 2 {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
				_, _ = w.Write([]byte("done"))
			}))
			defer srv.Close()

			resp, err := New().Do(ctx, http.MethodPost, srv.URL, nil, []byte("payload"))
			So(err, ShouldBeNil)
			resp.Body.Close()

			So(len(bodies), ShouldEqual, 2)
			So(bodies[0], ShouldEqual, "payload")
			So(bodies[1], ShouldEqual, "payload")
		})

		Convey("context 已取消时直接返回", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			_, err := New().Do(cancelled, http.MethodGet, "http://127.0.0.1:0", nil, nil)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})

		Convey("WithMaxRetries 调整尝试次数", func() {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(http.StatusInternalServerError)
			}))
			defer srv.Close()

			_, err := New().WithMaxRetries(1).Do(ctx, http.MethodGet, srv.URL, nil, nil)

			var retriesErr *MaxRetriesError
			So(errors.As(err, &retriesErr), ShouldBeTrue)
			So(retriesErr.Attempts, ShouldEqual, 1)
			So(atomic.LoadInt32(&calls), ShouldEqual, 1)
		})
	})
}

func TestPostJSON(t *testing.T) {
	Convey("PostJSON 测试", t, func() {
		ctx := context.Background()

		Convey("负载按 JSON 序列化并带 Content-Type", func() {
			type echo struct {
				Name string `json:"name"`
			}

			var gotContentType string
			var got echo
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotContentType = r.Header.Get("Content-Type")
				_ = json.NewDecoder(r.Body).Decode(&got)
				_, _ = w.Write([]byte(`{"ok":true}`))
			}))
			defer srv.Close()

			resp, err := New().PostJSON(ctx, srv.URL, echo{Name: "pomelo"}, nil)
			So(err, ShouldBeNil)
			resp.Body.Close()

			So(gotContentType, ShouldEqual, "application/json")
			So(got.Name, ShouldEqual, "pomelo")
		})

		Convey("自定义 header 被透传", func() {
			var gotAuth string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				_, _ = w.Write([]byte("ok"))
			}))
			defer srv.Close()

			header := http.Header{}
			header.Set("Authorization", "Bearer secret")

			resp, err := New().PostJSON(ctx, srv.URL, map[string]string{}, header)
			So(err, ShouldBeNil)
			resp.Body.Close()

			So(gotAuth, ShouldEqual, "Bearer secret")
		})
	})
}
