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

package mailing

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/lukasdietrich/outreach/internal/models"
)

// ErrSenderUnconfigured is returned when no sender address is configured.
var ErrSenderUnconfigured = errors.New("mailing: sender address not configured")

// An OutboundMessage holds the envelope and the raw mime data of one message.
type OutboundMessage struct {
	From      models.Address
	To        models.Address
	MessageID string
	Data      []byte
}

// Composer turns rendered messages into multipart/alternative mime messages.
// It emits only the minimal header set. Automation markers like "X-Mailer",
// "X-Priority" or "List-Unsubscribe" are never written.
type Composer struct {
	senderName    string
	senderAddress models.Address
	replyTo       string
	now           func() time.Time
}

// NewComposer reads the sender identity from the configuration.
func NewComposer() (*Composer, error) {
	raw := viper.GetString("mailing.sender.address")
	if raw == "" {
		return nil, ErrSenderUnconfigured
	}

	sender, err := models.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("mailing: invalid sender address: %w", err)
	}

	return &Composer{
		senderName:    viper.GetString("mailing.sender.name"),
		senderAddress: sender,
		replyTo:       viper.GetString("mailing.replyto"),
		now:           time.Now,
	}, nil
}

// Compose builds the final mime message. Both body parts are encoded as
// quoted-printable utf-8 and non-ascii header values as rfc 2047 words.
func (c *Composer) Compose(mail *RenderedMail) (*OutboundMessage, error) {
	var (
		buf       bytes.Buffer
		mixed     = multipart.NewWriter(&buf)
		messageID = fmt.Sprintf("%s@%s", uuid.NewString(), c.senderAddress.Domain())
	)

	c.writeHeader(&buf, "From", c.formatSender())
	c.writeHeader(&buf, "To", mail.To.String())

	if c.replyTo != "" {
		c.writeHeader(&buf, "Reply-To", c.replyTo)
	}

	c.writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", mail.Subject))
	c.writeHeader(&buf, "Date", c.now().Format(time.RFC1123Z))
	c.writeHeader(&buf, "Message-ID", fmt.Sprintf("<%s>", messageID))
	c.writeHeader(&buf, "MIME-Version", "1.0")
	c.writeHeader(&buf, "Content-Type",
		fmt.Sprintf("multipart/alternative; boundary=%q", mixed.Boundary()))
	buf.WriteString("\r\n")

	for _, part := range []struct {
		contentType string
		body        string
	}{
		{"text/plain; charset=utf-8", mail.Text},
		{"text/html; charset=utf-8", mail.HTML},
	} {
		if err := writePart(mixed, part.contentType, part.body); err != nil {
			return nil, err
		}
	}

	if err := mixed.Close(); err != nil {
		return nil, fmt.Errorf("mailing: compose: %w", err)
	}

	return &OutboundMessage{
		From:      c.senderAddress,
		To:        mail.To,
		MessageID: messageID,
		Data:      buf.Bytes(),
	}, nil
}

func (c *Composer) formatSender() string {
	if c.senderName == "" {
		return c.senderAddress.String()
	}

	return fmt.Sprintf("%s <%s>",
		mime.QEncoding.Encode("utf-8", c.senderName),
		c.senderAddress)
}

func (c *Composer) writeHeader(buf *bytes.Buffer, name, value string) {
	fmt.Fprintf(buf, "%s: %s\r\n", name, value)
}

func writePart(mixed *multipart.Writer, contentType, body string) error {
	header := textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"quoted-printable"},
	}

	part, err := mixed.CreatePart(header)
	if err != nil {
		return fmt.Errorf("mailing: compose: %w", err)
	}

	encoder := quotedprintable.NewWriter(part)

	if _, err := encoder.Write([]byte(body)); err != nil {
		return fmt.Errorf("mailing: compose: %w", err)
	}

	return encoder.Close()
}
