package smtp

import (
	"bytes"
	"crypto/tls"
	"net"
	"time"
)

// fakeTransport is a minimal net.Conn-shaped Transport backed by
// in-memory buffers, used to unit-test the codec/body/session logic
// without a real socket. Reads come from in, writes accumulate in out.
type fakeTransport struct {
	in  *bytes.Buffer
	out *bytes.Buffer
}

func newFakeTransport(input string) *fakeTransport {
	return &fakeTransport{in: bytes.NewBufferString(input), out: &bytes.Buffer{}}
}

func (f *fakeTransport) Read(p []byte) (int, error) {
	n, err := f.in.Read(p)
	if err != nil {
		return n, err
	}
	return n, nil
}

func (f *fakeTransport) Write(p []byte) (int, error) { return f.out.Write(p) }
func (f *fakeTransport) Close() error                { return nil }
func (f *fakeTransport) LocalAddr() net.Addr         { return fakeAddr{} }
func (f *fakeTransport) RemoteAddr() net.Addr        { return fakeAddr{} }
func (f *fakeTransport) SetDeadline(time.Time) error      { return nil }
func (f *fakeTransport) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeTransport) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeTransport) Flush() error                     { return nil }
func (f *fakeTransport) TLSConnectionState() (tls.ConnectionState, bool) {
	return tls.ConnectionState{}, false
}

type fakeAddr struct{}

func (fakeAddr) Network() string { return "fake" }
func (fakeAddr) String() string  { return "fake" }
