// errors.go
// ---------
// Error is the single failure type produced on the request path. Every failure
// that reaches the error-suppression policy carries one of three kinds:
//
// - KindConnection: endpoint parsing, TLS setup, dialing, proxy CONNECT, handshake.
// - KindTransport: building, sending or receiving the request.
// - KindSerialization: the JSON request body could not be encoded.
//
// A response body that fails to decode is not an error (see NormalizedResponse.Body).
package dogapi

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"
)

type ErrorKind int

const (
	KindConnection ErrorKind = iota + 1
	KindTransport
	KindSerialization
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindTransport:
		return "transport"
	case KindSerialization:
		return "serialization"
	default:
		return "unknown"
	}
}

// Error describes a failed request. URL holds the request path only; the query
// string carries credentials.
type Error struct {
	Kind   ErrorKind
	Method string
	URL    string
	Cause  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("dogapi: ")
	if e.Method != "" {
		b.WriteString(strings.ToUpper(e.Method))
		b.WriteString(" ")
	}
	if e.URL != "" {
		b.WriteString(e.URL)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	b.WriteString(" error")
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Timeout reports whether the underlying failure was a timeout.
func (e *Error) Timeout() bool {
	var ne net.Error
	return errors.As(e.Cause, &ne) && ne.Timeout()
}

// AsError extracts *Error.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

func IsConnectionError(err error) bool {
	de, ok := AsError(err)
	return ok && de.Kind == KindConnection
}

func IsTransportError(err error) bool {
	de, ok := AsError(err)
	return ok && de.Kind == KindTransport
}

func IsSerializationError(err error) bool {
	de, ok := AsError(err)
	return ok && de.Kind == KindSerialization
}

// classifyRoundTripError sorts failures returned by the HTTP round trip. The
// socket is already open at that point, so only proxy tunnelling and TLS
// negotiation failures count as connection errors.
func classifyRoundTripError(err error) ErrorKind {
	var opErr *net.OpError
	if errors.As(err, &opErr) && (opErr.Op == "proxyconnect" || opErr.Op == "dial") {
		return KindConnection
	}

	var (
		verifyErr   *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidErr  x509.CertificateInvalidError
	)
	switch {
	case errors.As(err, &verifyErr),
		errors.As(err, &recordErr),
		errors.As(err, &unknownAuth),
		errors.As(err, &hostErr),
		errors.As(err, &invalidErr):
		return KindConnection
	}

	if strings.Contains(err.Error(), "TLS handshake") {
		return KindConnection
	}
	return KindTransport
}
