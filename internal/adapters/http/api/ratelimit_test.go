package api

import (
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestClientLimiter(t *testing.T) {
	Convey("Given a per-client limiter with a fake clock", t, func() {
		now := time.Unix(1_700_000_000, 0)
		l := NewClientLimiter(1, 2, func() time.Time { return now })

		Convey("Then each client spends its own burst", func() {
			So(l.Allow("10.0.0.1"), ShouldBeTrue)
			So(l.Allow("10.0.0.1"), ShouldBeTrue)
			So(l.Allow("10.0.0.1"), ShouldBeFalse)
			So(l.Allow("10.0.0.2"), ShouldBeTrue)
		})

		Convey("Then tokens refill with time", func() {
			So(l.Allow("a"), ShouldBeTrue)
			So(l.Allow("a"), ShouldBeTrue)
			So(l.Allow("a"), ShouldBeFalse)
			now = now.Add(time.Second)
			So(l.Allow("a"), ShouldBeTrue)
		})

		Convey("Then idle clients are dropped", func() {
			l.Allow("a")
			l.Allow("b")
			So(l.Len(), ShouldEqual, 2)
			now = now.Add(clientIdleTTL)
			l.Allow("c")
			So(l.Len(), ShouldEqual, 1)
		})
	})

	Convey("Given a non-positive rate", t, func() {
		So(NewClientLimiter(0, 10, nil), ShouldBeNil)
	})

	Convey("Given request addresses", t, func() {
		r := httptest.NewRequest("GET", "/scoreboard", nil)
		r.RemoteAddr = "203.0.113.9:5555"
		So(clientKey(r), ShouldEqual, "203.0.113.9")
		r.RemoteAddr = "unix"
		So(clientKey(r), ShouldEqual, "unix")
	})
}
