package abort

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMemoryStore(t *testing.T) {
	Convey("内存取消信号存储测试", t, func() {
		ctx := context.Background()
		store := NewMemoryStore()

		Convey("未记录过信号时查询返回不存在", func() {
			_, ok := store.Last(ctx, "conv-1")
			So(ok, ShouldBeFalse)
		})

		Convey("记录后可以查询到时间戳", func() {
			at := time.Now()
			So(store.Signal(ctx, "conv-1", at), ShouldBeNil)

			got, ok := store.Last(ctx, "conv-1")
			So(ok, ShouldBeTrue)
			So(got.Equal(at), ShouldBeTrue)
		})

		Convey("更晚的信号覆盖更早的", func() {
			early := time.Now()
			late := early.Add(time.Second)

			So(store.Signal(ctx, "conv-1", early), ShouldBeNil)
			So(store.Signal(ctx, "conv-1", late), ShouldBeNil)

			got, _ := store.Last(ctx, "conv-1")
			So(got.Equal(late), ShouldBeTrue)
		})

		Convey("更早的信号不会回退已有的时间戳", func() {
			late := time.Now()
			early := late.Add(-time.Second)

			So(store.Signal(ctx, "conv-1", late), ShouldBeNil)
			So(store.Signal(ctx, "conv-1", early), ShouldBeNil)

			got, _ := store.Last(ctx, "conv-1")
			So(got.Equal(late), ShouldBeTrue)
		})

		Convey("Clear 之后查询返回不存在", func() {
			So(store.Signal(ctx, "conv-1", time.Now()), ShouldBeNil)
			So(store.Clear(ctx, "conv-1"), ShouldBeNil)

			_, ok := store.Last(ctx, "conv-1")
			So(ok, ShouldBeFalse)
		})

		Convey("不同对话的信号互不影响", func() {
			So(store.Signal(ctx, "conv-1", time.Now()), ShouldBeNil)

			_, ok := store.Last(ctx, "conv-2")
			So(ok, ShouldBeFalse)
		})
	})
}
