package fixtures

import "net"

// TCPFixture is a bare listener that accepts and immediately drops
// connections, enough to exercise the TCP probe's dial-then-close path.
type TCPFixture struct {
	lis net.Listener
}

func NewTCPFixture() (*TCPFixture, error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	f := &TCPFixture{lis: lis}
	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	return f, nil
}

func (f *TCPFixture) Addr() (string, string) {
	host, port, _ := net.SplitHostPort(f.lis.Addr().String())
	return host, port
}

func (f *TCPFixture) Close() error { return f.lis.Close() }

// UnreachableAddr returns a (host, port) pair nothing listens on, for
// driving the connection-refused scenario without tearing down a real
// listener.
func UnreachableAddr() (string, string) { return "127.0.0.1", "1" }
