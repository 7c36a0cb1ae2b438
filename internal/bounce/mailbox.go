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

package bounce

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/spf13/viper"
)

func init() {
	viper.SetDefault("bounce.imap.host", "")
	viper.SetDefault("bounce.imap.port", 993)
	viper.SetDefault("bounce.imap.username", "")
	viper.SetDefault("bounce.imap.password", "")
	viper.SetDefault("bounce.imap.mailbox", "INBOX")
}

// A RawBounce is one candidate notification fetched from the mailbox.
type RawBounce struct {
	UID       uint32
	MessageID string
	Subject   string
	Body      []byte
}

// Mailbox is the subset of an imap session the scanner needs.
type Mailbox interface {
	// FetchBounces returns all messages whose subject matches a known
	// delivery-status notification.
	FetchBounces() ([]RawBounce, error)
	// MarkSeen flags applied notifications, so manual mailbox triage can
	// tell them apart.
	MarkSeen(uids []uint32) error
	Close() error
}

// MailboxDialer opens a fresh imap session. Each scan uses its own.
type MailboxDialer func() (Mailbox, error)

// NewMailboxDialer builds a dialer for the configured imap account.
func NewMailboxDialer() MailboxDialer {
	return func() (Mailbox, error) {
		host := viper.GetString("bounce.imap.host")
		if host == "" {
			return nil, errors.New("bounce: imap host not configured")
		}

		addr := net.JoinHostPort(host, fmt.Sprint(viper.GetInt("bounce.imap.port")))

		conn, err := client.DialTLS(addr, nil)
		if err != nil {
			return nil, fmt.Errorf("bounce: could not connect to %q: %w", addr, err)
		}

		err = conn.Login(
			viper.GetString("bounce.imap.username"),
			viper.GetString("bounce.imap.password"))
		if err != nil {
			conn.Logout()
			return nil, fmt.Errorf("bounce: login failed: %w", err)
		}

		if _, err := conn.Select(viper.GetString("bounce.imap.mailbox"), false); err != nil {
			conn.Logout()
			return nil, fmt.Errorf("bounce: could not select mailbox: %w", err)
		}

		return &imapMailbox{conn: conn}, nil
	}
}

type imapMailbox struct {
	conn *client.Client
}

func (m *imapMailbox) FetchBounces() ([]RawBounce, error) {
	var uids []uint32

	for _, subject := range dsnSubjects {
		criteria := imap.NewSearchCriteria()
		criteria.Header.Add("Subject", subject)

		found, err := m.conn.UidSearch(criteria)
		if err != nil {
			return nil, fmt.Errorf("bounce: search failed: %w", err)
		}

		uids = append(uids, found...)
	}

	if len(uids) == 0 {
		return nil, nil
	}

	return m.fetch(uids)
}

func (m *imapMailbox) fetch(uids []uint32) ([]RawBounce, error) {
	var (
		seqset   = new(imap.SeqSet)
		section  = &imap.BodySectionName{Peek: true}
		items    = []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, section.FetchItem()}
		messages = make(chan *imap.Message, 16)
		done     = make(chan error, 1)
	)

	seqset.AddNum(uids...)

	go func() {
		done <- m.conn.UidFetch(seqset, items, messages)
	}()

	var bounces []RawBounce

	for message := range messages {
		raw := RawBounce{UID: message.Uid}

		if message.Envelope != nil {
			raw.MessageID = message.Envelope.MessageId
			raw.Subject = message.Envelope.Subject
		}

		if literal := message.GetBody(section); literal != nil {
			body, err := io.ReadAll(literal)
			if err != nil {
				return nil, fmt.Errorf("bounce: could not read message body: %w", err)
			}

			raw.Body = body
		}

		bounces = append(bounces, raw)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("bounce: fetch failed: %w", err)
	}

	return bounces, nil
}

func (m *imapMailbox) MarkSeen(uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}

	if err := m.conn.UidStore(seqset, item, flags, nil); err != nil {
		return fmt.Errorf("bounce: could not flag messages: %w", err)
	}

	return nil
}

func (m *imapMailbox) Close() error {
	return m.conn.Logout()
}
