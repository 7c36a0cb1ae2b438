// Copyright (C) 2020  Lukas Dietrich <lukas@lukasdietrich.com>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package delivery transmits composed messages over smtp and drives the
// campaign run across the roster.
package delivery

import (
	"errors"
	"net"
	"net/textproto"
)

// A PermanentError terminates the attempt for a recipient for good. The relay
// answered with a 5xx reply.
type PermanentError struct {
	// RecipientRejected is set when the relay refused the RCPT command. Only
	// then is the address itself known to be bad.
	RecipientRejected bool

	err error
}

func (e *PermanentError) Error() string {
	return "permanent: " + e.err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.err
}

// A TransientError may succeed on a later attempt. It covers 4xx replies,
// timeouts and connection failures.
type TransientError struct {
	// Connection is set when the session itself broke and must be
	// re-established before the next attempt.
	Connection bool

	err error
}

func (e *TransientError) Error() string {
	return "transient: " + e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// classifyErr wraps an smtp error into the permanent or transient taxonomy.
// 5xx replies are permanent, everything else may be retried.
func classifyErr(err error, recipientRejected bool) error {
	var protoErr *textproto.Error

	if errors.As(err, &protoErr) {
		if protoErr.Code >= 500 && protoErr.Code < 600 {
			return &PermanentError{err: err, RecipientRejected: recipientRejected}
		}

		if protoErr.Code >= 400 && protoErr.Code < 500 {
			return &TransientError{err: err}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, net.ErrClosed) {
		return &TransientError{err: err, Connection: true}
	}

	// Unknown errors are treated like broken connections. A fresh session
	// either clears them or turns them into a proper smtp reply.
	return &TransientError{err: err, Connection: true}
}

// IsPermanentErr tests if a dispatch error is terminal for the recipient.
func IsPermanentErr(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}

// IsRecipientRejectedErr tests if the relay refused the recipient address
// itself. Only this case justifies flagging the address as bounced without
// waiting for a delivery-status notification.
func IsRecipientRejectedErr(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent) && permanent.RecipientRejected
}
