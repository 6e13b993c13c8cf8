package sender

import (
	"context"
	"io"
	"net"
	"strconv"
)

// Dialer opens connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// transport runs one request/response exchange over a fresh connection.
type transport struct {
	dialer  Dialer
	address string
	port    int
}

func (t *transport) errorf(op string, err error) error {
	return &TransportError{Op: op, Address: t.address, Port: t.port, Err: err}
}

// open dials the server and applies the context deadline to the connection.
func (t *transport) open(ctx context.Context) (net.Conn, error) {
	conn, err := t.dialer.DialContext(ctx, "tcp", net.JoinHostPort(t.address, strconv.Itoa(t.port)))
	if err != nil {
		return nil, t.errorf("dial", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, t.errorf("dial", err)
		}
	}
	return conn, nil
}

func (t *transport) writeAll(conn net.Conn, frame []byte) error {
	n, err := conn.Write(frame)
	if err != nil {
		return t.errorf("write", err)
	}
	if n != len(frame) {
		return t.errorf("write", io.ErrShortWrite)
	}
	return nil
}

func (t *transport) readResponse(conn net.Conn) ([]byte, error) {
	payload, err := ReadFrame(conn, MaxResponseSize)
	if err == io.EOF {
		return nil, t.errorf("read", io.ErrUnexpectedEOF)
	}
	if err != nil {
		if _, ok := err.(*ProtocolError); ok {
			return nil, err
		}
		return nil, t.errorf("read", err)
	}
	return payload, nil
}

// roundTrip sends frame and returns the response payload. The connection
// is closed on every path.
func (t *transport) roundTrip(ctx context.Context, frame []byte) ([]byte, error) {
	conn, err := t.open(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := t.writeAll(conn, frame); err != nil {
		return nil, err
	}
	return t.readResponse(conn)
}
