package smtp

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestBodyStream(t *testing.T) {
	Convey("Given an empty body (sentinel only)", t, func() {
		codec := NewCodec(newFakeTransport(".\r\n"), 0, false)
		stream := newBodyStream(codec, 0, 0)

		Convey("the first Next call reports exhaustion with no lines", func() {
			_, ok := stream.Next()
			So(ok, ShouldBeFalse)
			So(stream.Exhausted(), ShouldBeTrue)
			So(stream.Err(), ShouldBeNil)
		})
	})

	Convey("Given a body with dot-stuffed lines", t, func() {
		codec := NewCodec(newFakeTransport("hi\r\n..a\r\n.\r\n"), 0, false)
		stream := newBodyStream(codec, 0, 0)

		Convey("transparency removes exactly one leading dot", func() {
			line, ok := stream.Next()
			So(ok, ShouldBeTrue)
			So(line, ShouldEqual, "hi\r\n")

			line, ok = stream.Next()
			So(ok, ShouldBeTrue)
			So(line, ShouldEqual, ".a\r\n")

			_, ok = stream.Next()
			So(ok, ShouldBeFalse)
			So(stream.Exhausted(), ShouldBeTrue)
		})
	})

	Convey("Given a handler that stops before the sentinel", t, func() {
		codec := NewCodec(newFakeTransport("one\r\ntwo\r\n.\r\n"), 0, false)
		stream := newBodyStream(codec, 0, 0)

		Convey("Exhausted reports false until the sentinel is actually read", func() {
			_, ok := stream.Next()
			So(ok, ShouldBeTrue)
			So(stream.Exhausted(), ShouldBeFalse)
		})
	})
}
