// Package errors labels backend transport failures for logs and metrics.
package errors

import (
	"context"
	"crypto/tls"
	goerrors "errors"
	"net"
	"reflect"
	"strings"
	"syscall"
)

// Transport failure classes. Anything else is reported by its innermost type name.
const (
	ClassTimeout  = "timeout"
	ClassCanceled = "canceled"
	ClassDNS      = "dns"
	ClassRefused  = "connection_refused"
	ClassReset    = "connection_reset"
	ClassTLS      = "tls"
	ClassUnknown  = "unknown"
)

// Classify returns a short, stable label for a failed backend call.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var (
		dnsErr  *net.DNSError
		tlsErr  *tls.RecordHeaderError
		certErr *tls.CertificateVerificationError
		netErr  net.Error
	)
	switch {
	case goerrors.Is(err, context.Canceled):
		return ClassCanceled
	case goerrors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	case goerrors.As(err, &dnsErr):
		return ClassDNS
	case goerrors.Is(err, syscall.ECONNREFUSED):
		return ClassRefused
	case goerrors.Is(err, syscall.ECONNRESET):
		return ClassReset
	case goerrors.As(err, &tlsErr), goerrors.As(err, &certErr):
		return ClassTLS
	case goerrors.As(err, &netErr) && netErr.Timeout():
		return ClassTimeout
	}
	return typeName(err)
}

// typeName unwraps to the innermost error and renders its type as e.g. "url_error".
func typeName(err error) string {
	for {
		next := goerrors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ClassUnknown
	}
	name := strings.ToLower(strings.ReplaceAll(t.String(), ".", "_"))
	if name == "" {
		return ClassUnknown
	}
	return name
}
