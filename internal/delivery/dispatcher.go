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

package delivery

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"time"

	"github.com/spf13/viper"

	"github.com/lukasdietrich/outreach/internal/log"
	"github.com/lukasdietrich/outreach/internal/mailing"
)

func init() {
	viper.SetDefault("delivery.smtp.host", "")
	viper.SetDefault("delivery.smtp.port", 587)
	viper.SetDefault("delivery.smtp.username", "")
	viper.SetDefault("delivery.smtp.password", "")
	viper.SetDefault("delivery.smtp.authmethod", "plain")
	viper.SetDefault("delivery.smtp.helo", "localhost")
	viper.SetDefault("delivery.smtp.dialtimeout", "30s")

	viper.SetDefault("delivery.retry.maxretries", 3)
	viper.SetDefault("delivery.retry.delay", "2s")
	viper.SetDefault("delivery.retry.delaycap", "30s")
}

// ErrTLSUnsupported is returned when the relay does not offer starttls.
// Credentials are never sent over a cleartext session.
var ErrTLSUnsupported = errors.New("delivery: relay does not support starttls")

// Dispatcher transmits a single composed message to the relay.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *mailing.OutboundMessage) error
	Close() error
}

type smtpDispatcher struct {
	addr       string
	helo       string
	auth       smtp.Auth
	maxRetries int
	delay      time.Duration
	delayCap   time.Duration

	// dial is swapped out in tests.
	dial func() (smtpSession, net.Conn, error)

	session smtpSession
	conn    net.Conn
}

// smtpSession is the subset of *smtp.Client the dispatcher uses.
type smtpSession interface {
	Hello(localName string) error
	Extension(ext string) (bool, string)
	StartTLS(config *tls.Config) error
	Auth(auth smtp.Auth) error
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Reset() error
	Quit() error
	Close() error
}

// NewDispatcher creates a dispatcher for the configured relay. The underlying
// session is established lazily on the first dispatch and kept open for the
// whole run.
func NewDispatcher() (Dispatcher, error) {
	var (
		host = viper.GetString("delivery.smtp.host")
		port = viper.GetInt("delivery.smtp.port")
	)

	if host == "" {
		return nil, errors.New("delivery: smtp host not configured")
	}

	auth, err := newAuth(host)
	if err != nil {
		return nil, err
	}

	d := &smtpDispatcher{
		addr:       net.JoinHostPort(host, fmt.Sprint(port)),
		helo:       viper.GetString("delivery.smtp.helo"),
		auth:       auth,
		maxRetries: viper.GetInt("delivery.retry.maxretries"),
		delay:      viper.GetDuration("delivery.retry.delay"),
		delayCap:   viper.GetDuration("delivery.retry.delaycap"),
	}

	dialTimeout := viper.GetDuration("delivery.smtp.dialtimeout")

	d.dial = func() (smtpSession, net.Conn, error) {
		conn, err := net.DialTimeout("tcp", d.addr, dialTimeout)
		if err != nil {
			return nil, nil, err
		}

		session, err := smtp.NewClient(conn, host)
		if err != nil {
			conn.Close()
			return nil, nil, err
		}

		return session, conn, nil
	}

	return d, nil
}

func newAuth(host string) (smtp.Auth, error) {
	var (
		username = viper.GetString("delivery.smtp.username")
		password = viper.GetString("delivery.smtp.password")
	)

	if username == "" {
		return nil, nil
	}

	switch method := viper.GetString("delivery.smtp.authmethod"); method {
	case "plain":
		return smtp.PlainAuth("", username, password, host), nil
	case "login":
		return &loginAuth{username: username, password: password}, nil
	default:
		return nil, fmt.Errorf("delivery: unknown auth method %q", method)
	}
}

// Dispatch sends one message. Transient failures are retried with exponential
// backoff until the retry budget is exhausted. The returned error is either a
// *PermanentError, a *TransientError or a context error.
func (d *smtpDispatcher) Dispatch(ctx context.Context, msg *mailing.OutboundMessage) error {
	var lastErr error

	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			if err := d.backoff(ctx, attempt); err != nil {
				return err
			}

			log.DebugContext(ctx).
				Int("attempt", attempt).
				Msg("retrying dispatch")
		}

		err := d.transmit(ctx, msg)
		if err == nil {
			return nil
		}

		lastErr = err

		if IsPermanentErr(err) {
			return err
		}

		var transient *TransientError
		if errors.As(err, &transient) && transient.Connection {
			d.teardown()
		}
	}

	return lastErr
}

func (d *smtpDispatcher) backoff(ctx context.Context, attempt int) error {
	delay := d.delay << (attempt - 1)
	if delay > d.delayCap {
		delay = d.delayCap
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (d *smtpDispatcher) transmit(ctx context.Context, msg *mailing.OutboundMessage) error {
	session, err := d.connect(ctx)
	if err != nil {
		return err
	}

	d.applyDeadline(ctx)

	if err := session.Mail(msg.From.String()); err != nil {
		return d.abort(session, err, false)
	}

	if err := session.Rcpt(msg.To.String()); err != nil {
		return d.abort(session, err, true)
	}

	w, err := session.Data()
	if err != nil {
		return d.abort(session, err, false)
	}

	if _, err := w.Write(msg.Data); err != nil {
		return d.abort(session, err, false)
	}

	if err := w.Close(); err != nil {
		return d.abort(session, err, false)
	}

	return nil
}

// abort resets the session after a failed transaction so the next message
// starts clean, then classifies the original error.
func (d *smtpDispatcher) abort(session smtpSession, err error, recipientRejected bool) error {
	if resetErr := session.Reset(); resetErr != nil {
		d.teardown()
	}

	return classifyErr(err, recipientRejected)
}

// connect establishes the relay session once and reuses it afterwards.
// Starttls is mandatory.
func (d *smtpDispatcher) connect(ctx context.Context) (smtpSession, error) {
	if d.session != nil {
		return d.session, nil
	}

	log.DebugContext(ctx).
		Str("addr", d.addr).
		Msg("connecting to relay")

	session, conn, err := d.dial()
	if err != nil {
		return nil, classifyErr(err, false)
	}

	d.session = session
	d.conn = conn
	d.applyDeadline(ctx)

	if err := d.setup(session); err != nil {
		d.teardown()
		return nil, err
	}

	return session, nil
}

// applyDeadline bounds all socket io of the current attempt by the context
// deadline. Without it a stalled relay would block past the row timeout.
func (d *smtpDispatcher) applyDeadline(ctx context.Context) {
	if d.conn == nil {
		return
	}

	if deadline, ok := ctx.Deadline(); ok {
		d.conn.SetDeadline(deadline)
	} else {
		d.conn.SetDeadline(time.Time{})
	}
}

func (d *smtpDispatcher) setup(session smtpSession) error {
	if err := session.Hello(d.helo); err != nil {
		return classifyErr(err, false)
	}

	if ok, _ := session.Extension("STARTTLS"); !ok {
		return ErrTLSUnsupported
	}

	host, _, _ := net.SplitHostPort(d.addr)

	if err := session.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return classifyErr(err, false)
	}

	if d.auth != nil {
		if err := session.Auth(d.auth); err != nil {
			return classifyErr(err, false)
		}
	}

	return nil
}

func (d *smtpDispatcher) teardown() {
	if d.session != nil {
		d.session.Close()
		d.session = nil
		d.conn = nil
	}
}

// Close quits the session gracefully at the end of a run.
func (d *smtpDispatcher) Close() error {
	if d.session == nil {
		return nil
	}

	err := d.session.Quit()
	d.session = nil
	d.conn = nil
	return err
}

// loginAuth implements the legacy "LOGIN" mechanism, which some relays still
// require instead of "PLAIN".
type loginAuth struct {
	username string
	password string
}

func (a *loginAuth) Start(_ *smtp.ServerInfo) (string, []byte, error) {
	return "LOGIN", nil, nil
}

func (a *loginAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}

	switch {
	case bytes.Contains(fromServer, []byte("Username")):
		return []byte(a.username), nil
	case bytes.Contains(fromServer, []byte("Password")):
		return []byte(a.password), nil
	default:
		return nil, fmt.Errorf("delivery: unexpected auth challenge %q", fromServer)
	}
}
