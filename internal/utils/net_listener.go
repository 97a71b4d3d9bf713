package utils

import (
	"fmt"
	"net"
	"time"
)

const tcpKeepAlivePeriod = 30 * time.Second

type Listener struct {
	net.Listener
}

func (l Listener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err //nolint: wrapcheck
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetKeepAlive(true)                     //nolint: errcheck
		tcpConn.SetKeepAlivePeriod(tcpKeepAlivePeriod) //nolint: errcheck
		tcpConn.SetNoDelay(true)                       //nolint: errcheck
	}

	return conn, nil
}

// NewListener creates a TCP listener with keepalives enabled on
// accepted connections.
func NewListener(bindTo string) (net.Listener, error) {
	base, err := net.Listen("tcp", bindTo)
	if err != nil {
		return nil, fmt.Errorf("cannot build a base listener: %w", err)
	}

	return Listener{Listener: base}, nil
}
