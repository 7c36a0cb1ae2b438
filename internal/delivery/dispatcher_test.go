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
	"io"
	"net"
	"net/smtp"
	"net/textproto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukasdietrich/outreach/internal/mailing"
	"github.com/lukasdietrich/outreach/internal/models"
)

type fakeSession struct {
	calls []string
	data  bytes.Buffer

	starttls bool
	mailErr  error
	rcptErr  error
	dataErr  error
}

func (f *fakeSession) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeSession) Hello(string) error {
	f.record("hello")
	return nil
}

func (f *fakeSession) Extension(ext string) (bool, string) {
	if ext == "STARTTLS" {
		return f.starttls, ""
	}

	return false, ""
}

func (f *fakeSession) StartTLS(*tls.Config) error {
	f.record("starttls")
	return nil
}

func (f *fakeSession) Auth(smtp.Auth) error {
	f.record("auth")
	return nil
}

func (f *fakeSession) Mail(string) error {
	f.record("mail")
	return f.mailErr
}

func (f *fakeSession) Rcpt(string) error {
	f.record("rcpt")
	return f.rcptErr
}

func (f *fakeSession) Data() (io.WriteCloser, error) {
	f.record("data")

	if f.dataErr != nil {
		return nil, f.dataErr
	}

	return nopWriteCloser{&f.data}, nil
}

func (f *fakeSession) Reset() error {
	f.record("reset")
	return nil
}

func (f *fakeSession) Quit() error {
	f.record("quit")
	return nil
}

func (f *fakeSession) Close() error {
	f.record("close")
	return nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error {
	return nil
}

func newTestDispatcher(session *fakeSession) (*smtpDispatcher, *int) {
	dials := 0

	d := &smtpDispatcher{
		addr:       "relay.example:587",
		helo:       "outreach.example",
		auth:       smtp.PlainAuth("", "user", "secret", "relay.example"),
		maxRetries: 2,
		delay:      time.Millisecond,
		delayCap:   time.Millisecond * 4,
	}

	d.dial = func() (smtpSession, net.Conn, error) {
		dials++
		return session, nil, nil
	}

	return d, &dials
}

func testMessage(t *testing.T) *mailing.OutboundMessage {
	t.Helper()

	from, err := models.Parse("talent@corp.example")
	require.NoError(t, err)

	to, err := models.Parse("jobs@acme.example")
	require.NoError(t, err)

	return &mailing.OutboundMessage{
		From:      from,
		To:        to,
		MessageID: "abc@corp.example",
		Data:      []byte("Subject: hi\r\n\r\nhello"),
	}
}

func TestDispatchSuccess(t *testing.T) {
	session := &fakeSession{starttls: true}
	d, dials := newTestDispatcher(session)

	require.NoError(t, d.Dispatch(context.Background(), testMessage(t)))
	require.NoError(t, d.Dispatch(context.Background(), testMessage(t)))

	// one session for both messages
	assert.Equal(t, 1, *dials)
	assert.Equal(t,
		[]string{"hello", "starttls", "auth", "mail", "rcpt", "data", "mail", "rcpt", "data"},
		session.calls)

	require.NoError(t, d.Close())
	assert.Equal(t, "quit", session.calls[len(session.calls)-1])
}

func TestDispatchRequiresStartTLS(t *testing.T) {
	session := &fakeSession{starttls: false}
	d, _ := newTestDispatcher(session)
	d.maxRetries = 0

	err := d.Dispatch(context.Background(), testMessage(t))
	assert.ErrorIs(t, err, ErrTLSUnsupported)
	assert.Contains(t, session.calls, "close")
}

func TestDispatchRecipientRejected(t *testing.T) {
	session := &fakeSession{
		starttls: true,
		rcptErr:  &textproto.Error{Code: 550, Msg: "no such user"},
	}

	d, dials := newTestDispatcher(session)

	err := d.Dispatch(context.Background(), testMessage(t))
	assert.True(t, IsPermanentErr(err))
	assert.True(t, IsRecipientRejectedErr(err))

	// permanent errors are not retried
	assert.Equal(t, 1, *dials)
	assert.Contains(t, session.calls, "reset")
}

func TestDispatchTransientExhaustsRetries(t *testing.T) {
	session := &fakeSession{
		starttls: true,
		mailErr:  &textproto.Error{Code: 421, Msg: "try again later"},
	}

	d, _ := newTestDispatcher(session)

	err := d.Dispatch(context.Background(), testMessage(t))

	var transient *TransientError
	require.ErrorAs(t, err, &transient)
	assert.False(t, IsPermanentErr(err))

	// initial attempt plus two retries
	attempts := 0
	for _, call := range session.calls {
		if call == "mail" {
			attempts++
		}
	}
	assert.Equal(t, 3, attempts)
}

func TestDispatchReconnectsAfterConnectionError(t *testing.T) {
	session := &fakeSession{starttls: true, dataErr: io.EOF}
	d, dials := newTestDispatcher(session)

	err := d.Dispatch(context.Background(), testMessage(t))

	var transient *TransientError
	require.ErrorAs(t, err, &transient)
	assert.True(t, transient.Connection)

	// a broken session is re-dialed before every retry
	assert.Equal(t, 3, *dials)
}

func TestDispatchDialError(t *testing.T) {
	d, _ := newTestDispatcher(nil)
	d.maxRetries = 0
	d.dial = func() (smtpSession, net.Conn, error) {
		return nil, nil, errors.New("connection refused")
	}

	err := d.Dispatch(context.Background(), testMessage(t))

	var transient *TransientError
	assert.ErrorAs(t, err, &transient)
}

func TestDispatchBackoffHonorsCancellation(t *testing.T) {
	session := &fakeSession{
		starttls: true,
		mailErr:  &textproto.Error{Code: 421, Msg: "busy"},
	}

	d, _ := newTestDispatcher(session)
	d.delay = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(time.Millisecond * 10)
		cancel()
	}()

	err := d.Dispatch(ctx, testMessage(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoginAuth(t *testing.T) {
	auth := &loginAuth{username: "user", password: "secret"}

	mechanism, _, err := auth.Start(&smtp.ServerInfo{TLS: true})
	require.NoError(t, err)
	assert.Equal(t, "LOGIN", mechanism)

	username, err := auth.Next([]byte("Username:"), true)
	require.NoError(t, err)
	assert.Equal(t, []byte("user"), username)

	password, err := auth.Next([]byte("Password:"), true)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), password)
}

// fakeConn only records deadline changes, the fake session does the talking.
type fakeConn struct {
	net.Conn
	deadlines []time.Time
}

func (c *fakeConn) SetDeadline(t time.Time) error {
	c.deadlines = append(c.deadlines, t)
	return nil
}

func TestDispatchBoundsSocketIOByContextDeadline(t *testing.T) {
	session := &fakeSession{starttls: true}
	conn := new(fakeConn)

	d, _ := newTestDispatcher(session)
	d.dial = func() (smtpSession, net.Conn, error) {
		return session, conn, nil
	}

	ctx, cancel := context.WithDeadline(context.Background(),
		time.Now().Add(time.Minute))
	defer cancel()

	require.NoError(t, d.Dispatch(ctx, testMessage(t)))

	deadline, ok := ctx.Deadline()
	require.True(t, ok)

	require.NotEmpty(t, conn.deadlines)
	for _, set := range conn.deadlines {
		assert.Equal(t, deadline, set)
	}

	// without a deadline the socket must not keep the stale one
	require.NoError(t, d.Dispatch(context.Background(), testMessage(t)))
	assert.True(t, conn.deadlines[len(conn.deadlines)-1].IsZero())
}
