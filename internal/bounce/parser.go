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

// Package bounce scans the sender mailbox for delivery-status notifications
// and feeds them back into the roster.
package bounce

import (
	"errors"
	"regexp"
	"strings"

	"github.com/lukasdietrich/outreach/internal/models"
)

// dsnSubjects are the subject lines relay mtas use for delivery-status
// notifications.
var dsnSubjects = []string{
	"Undelivered Mail Returned to Sender",
	"Mail delivery failed",
	"Delivery Status Notification (Failure)",
}

// ErrUnparseableDSN means the notification did not yield both a recipient
// and a classification. Such messages are left in the mailbox untouched.
var ErrUnparseableDSN = errors.New("bounce: unparseable delivery-status notification")

var (
	recipientPattern = regexp.MustCompile(
		`(?im)^(?:Final-Recipient|Original-Recipient|X-Failed-Recipients):\s*(?:rfc822;\s*)?<?([^\s<>;]+@[^\s<>;]+)>?`)
	statusPattern = regexp.MustCompile(`(?im)^Status:\s*([45])\.\d+\.\d+`)
)

var (
	permanentPhrases = []string{
		"user unknown",
		"no such user",
		"mailbox unavailable",
		"does not exist",
		"address rejected",
	}

	transientPhrases = []string{
		"temporarily",
		"try again later",
		"mailbox full",
		"quota exceeded",
		"deferred",
	}
)

// A Notification is the parsed essence of one delivery-status notification.
type Notification struct {
	Recipient      models.Address
	Classification models.BounceState
	Reason         string
}

// IsDSNSubject reports whether a subject line looks like a delivery-status
// notification.
func IsDSNSubject(subject string) bool {
	for _, known := range dsnSubjects {
		if strings.Contains(subject, known) {
			return true
		}
	}

	return false
}

// ParseDSN extracts the failed recipient and the failure class from the raw
// notification body. The machine readable "Status:" field wins over phrase
// matching in the human readable part.
func ParseDSN(body []byte) (*Notification, error) {
	text := string(body)

	recipientMatch := recipientPattern.FindStringSubmatch(text)
	if recipientMatch == nil {
		return nil, ErrUnparseableDSN
	}

	recipient, err := models.Parse(recipientMatch[1])
	if err != nil {
		return nil, ErrUnparseableDSN
	}

	classification, reason := classify(text)
	if classification == models.BounceNone {
		return nil, ErrUnparseableDSN
	}

	return &Notification{
		Recipient:      recipient.Normalized(),
		Classification: classification,
		Reason:         reason,
	}, nil
}

func classify(text string) (models.BounceState, string) {
	if match := statusPattern.FindStringSubmatch(text); match != nil {
		switch match[1] {
		case "5":
			return models.BouncePermanent, firstPhrase(text, permanentPhrases, "permanent failure")
		case "4":
			return models.BounceTransient, firstPhrase(text, transientPhrases, "transient failure")
		}
	}

	lowered := strings.ToLower(text)

	for _, phrase := range permanentPhrases {
		if strings.Contains(lowered, phrase) {
			return models.BouncePermanent, phrase
		}
	}

	for _, phrase := range transientPhrases {
		if strings.Contains(lowered, phrase) {
			return models.BounceTransient, phrase
		}
	}

	return models.BounceNone, ""
}

func firstPhrase(text string, phrases []string, fallback string) string {
	lowered := strings.ToLower(text)

	for _, phrase := range phrases {
		if strings.Contains(lowered, phrase) {
			return phrase
		}
	}

	return fallback
}
