package sender

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// Sentinels matched by the concrete error types through errors.Is.
var (
	ErrValidation     = errors.New("validation error")
	ErrConnect        = errors.New("connect error")
	ErrTransport      = errors.New("transport error")
	ErrProtocol       = errors.New("protocol error")
	ErrServerRejected = errors.New("server rejected")
)

// ValidationError reports an incomplete sample, destination or server
// configuration. It is a caller bug and never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Is makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// TransportError reports a socket level failure. Op is one of "dial",
// "write" or "read"; a failed dial is also a connect error.
type TransportError struct {
	Op      string
	Address string
	Port    int
	Err     error
}

func (e *TransportError) Error() string {
	target := net.JoinHostPort(e.Address, strconv.Itoa(e.Port))
	switch e.Op {
	case "dial":
		return fmt.Sprintf("can't connect to %s: %v", target, e.Err)
	case "write":
		return fmt.Sprintf("can't send to zabbix server %s: %v", target, e.Err)
	default:
		return fmt.Sprintf("can't receive response from %s: %v", target, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is matches ErrTransport for every op and ErrConnect for dial failures.
func (e *TransportError) Is(target error) bool {
	if target == ErrTransport {
		return true
	}
	return target == ErrConnect && e.Op == "dial"
}

// ProtocolError reports a response that does not follow the trapper wire
// format or the expected acknowledgement grammar.
type ProtocolError struct {
	Msg string
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

func protocolErrorf(format string, args ...interface{}) error {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...)}
}

// ServerRejectedError is returned when the exchange succeeded on the wire
// but the server answered with a non-success status. The parsed response
// is attached.
type ServerRejectedError struct {
	Response *Response
}

func (e *ServerRejectedError) Error() string {
	return fmt.Sprintf("zabbix server returned non-success response %q", e.Response.Status)
}

func (e *ServerRejectedError) Is(target error) bool {
	return target == ErrServerRejected
}
