// Package netutil decides which Bot API failures are worth another attempt.
package netutil

import (
	"errors"
	"net"

	tele "gopkg.in/telebot.v4"
)

// ShouldRetry reports whether err is transient: flood control, a 5xx from
// the Bot API, or a network timeout or failed dial. Client errors such as
// "bot was blocked by the user" are final.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	var (
		flood  tele.FloodError
		apiErr *tele.Error
		netErr net.Error
	)
	switch {
	case errors.As(err, &flood):
		return true
	case errors.As(err, &apiErr):
		return apiErr.Code >= 500
	case IsDialError(err):
		return true
	case errors.As(err, &netErr):
		// *url.Error implements net.Error and forwards Timeout to what it wraps.
		return netErr.Timeout()
	}
	return false
}

// IsDialError reports whether err happened while connecting, before any
// byte of the request was written. Such a request is safe to repeat.
func IsDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
