package smtp

import (
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCodecReadLine(t *testing.T) {
	Convey("Given a codec over a simple command stream", t, func() {
		transport := newFakeTransport("EHLO a\r\nMAIL FROM:<s@x>\r\n")
		codec := NewCodec(transport, 0, false)

		Convey("it yields lines including their CRLF terminator", func() {
			line, err := codec.ReadLine()
			So(err, ShouldBeNil)
			So(line, ShouldEqual, "EHLO a\r\n")

			line, err = codec.ReadLine()
			So(err, ShouldBeNil)
			So(line, ShouldEqual, "MAIL FROM:<s@x>\r\n")
		})
	})

	Convey("Given an empty stream", t, func() {
		transport := newFakeTransport("")
		codec := NewCodec(transport, 0, false)

		Convey("ReadLine reports a clean EOF", func() {
			_, err := codec.ReadLine()
			So(err, ShouldEqual, ErrEOF)
		})
	})

	Convey("Given a line exactly at the maximum length", t, func() {
		content := strings.Repeat("a", 998)
		transport := newFakeTransport(content + "\r\n")
		codec := NewCodec(transport, 1000, false)

		Convey("it is accepted", func() {
			line, err := codec.ReadLine()
			So(err, ShouldBeNil)
			So(len(line), ShouldEqual, 1000)
		})
	})

	Convey("Given a line one octet over the maximum length", t, func() {
		content := strings.Repeat("a", 999)
		transport := newFakeTransport(content + "\r\nNOOP\r\n")
		codec := NewCodec(transport, 1000, false)

		Convey("it is rejected as a FramingError and the codec resyncs", func() {
			_, err := codec.ReadLine()
			fe, ok := err.(*FramingError)
			So(ok, ShouldBeTrue)
			So(fe.Err, ShouldEqual, ErrLineTooLong)

			line, err := codec.ReadLine()
			So(err, ShouldBeNil)
			So(line, ShouldEqual, "NOOP\r\n")
		})
	})

	Convey("Given a line with no terminator at all", t, func() {
		transport := newFakeTransport(strings.Repeat("x", 10000))
		codec := NewCodec(transport, 1000, false)

		Convey("ReadLine returns a framing error", func() {
			_, err := codec.ReadLine()
			So(err, ShouldNotBeNil)
			_, ok := err.(*FramingError)
			So(ok, ShouldBeTrue)
		})
	})

	Convey("Given strict mode and a bare LF", t, func() {
		transport := newFakeTransport("NOOP\n")
		codec := NewCodec(transport, 0, true)

		Convey("it is rejected as a framing error", func() {
			_, err := codec.ReadLine()
			fe, ok := err.(*FramingError)
			So(ok, ShouldBeTrue)
			So(fe.Err, ShouldEqual, ErrBareLF)
		})
	})

	Convey("Given lenient mode and a bare LF", t, func() {
		transport := newFakeTransport("NOOP\n")
		codec := NewCodec(transport, 0, false)

		Convey("it is accepted as a line terminator", func() {
			line, err := codec.ReadLine()
			So(err, ShouldBeNil)
			So(line, ShouldEqual, "NOOP\n")
		})
	})
}

func TestCodecDecompose(t *testing.T) {
	Convey("Given a codec that has buffered ahead past one line", t, func() {
		transport := newFakeTransport("EHLO a\r\nMAIL FROM:<s@x>\r\n")
		codec := NewCodec(transport, 0, false)
		_, err := codec.ReadLine()
		So(err, ShouldBeNil)

		Convey("Decompose recovers the remaining unread bytes", func() {
			_, pending := codec.Decompose()
			So(string(pending), ShouldEqual, "MAIL FROM:<s@x>\r\n")
		})
	})
}
