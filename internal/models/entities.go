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

package models

import (
	"database/sql"
	"strings"
	"time"
)

// JobTitleSeparator joins the job titles of a company into a single column.
const JobTitleSeparator = "/"

// BounceState indicates whether a delivery-failure notification has been
// observed for a company.
type BounceState string

const (
	// BounceNone means no bounce has been observed.
	BounceNone BounceState = ""
	// BouncePermanent means the address is gone for good. The row is skipped forever.
	BouncePermanent BounceState = "permanent"
	// BounceTransient means a temporary failure, eg. a full mailbox.
	BounceTransient BounceState = "transient"
)

// UnsubscribeState indicates whether a company asked to not be contacted again.
type UnsubscribeState string

const (
	// UnsubscribeNone means no unsubscribe request is on file.
	UnsubscribeNone UnsubscribeState = ""
	// Unsubscribed means the row is skipped forever.
	Unsubscribed UnsubscribeState = "unsubscribed"
)

// SendStatus is the status of the most recent send attempt for a company.
type SendStatus string

const (
	// SendNone means no attempt has been made yet.
	SendNone SendStatus = ""
	// SendSuccess means the most recent attempt was accepted by the relay.
	SendSuccess SendStatus = "success"
	// SendFailed means the most recent attempt failed.
	SendFailed SendStatus = "failed"
)

// SendOutcome is the terminal result of a single dispatch attempt.
type SendOutcome string

const (
	// OutcomeSuccess is a 2xx reply on end-of-data.
	OutcomeSuccess SendOutcome = "success"
	// OutcomeFailed is any terminal failure, permanent or exhausted-transient.
	OutcomeFailed SendOutcome = "failed"
)

// CompanyEntity is the entity for the "companies" table. One row per target
// company of the campaign.
type CompanyEntity struct {
	ID             int64          `db:"id"`
	Name           string         `db:"name"`
	Homepage       sql.NullString `db:"homepage"`
	ContactEmail   sql.NullString `db:"contact_email"`
	SecondaryEmail sql.NullString `db:"secondary_email"`
	JobTitles      string         `db:"job_titles"`

	BounceState  BounceState    `db:"bounce_state"`
	BounceTime   sql.NullInt64  `db:"bounce_time"`
	BounceReason sql.NullString `db:"bounce_reason"`

	UnsubscribeState  UnsubscribeState `db:"unsubscribe_state"`
	UnsubscribeTime   sql.NullInt64    `db:"unsubscribe_time"`
	UnsubscribeReason sql.NullString   `db:"unsubscribe_reason"`

	LastSendStatus SendStatus     `db:"last_send_status"`
	LastSendTime   sql.NullInt64  `db:"last_send_time"`
	LastError      sql.NullString `db:"last_error"`
	LastBounceType sql.NullString `db:"last_bounce_type"`
}

// PrimaryJobTitle returns the first of the slash separated job titles.
func (c *CompanyEntity) PrimaryJobTitle() string {
	title, _, _ := strings.Cut(c.JobTitles, JobTitleSeparator)
	return strings.TrimSpace(title)
}

// Recipient parses the contact email into an Address. An error means the row
// has no usable address and must be skipped.
func (c *CompanyEntity) Recipient() (Address, error) {
	if !c.ContactEmail.Valid {
		return ZeroAddress, ErrInvalidAddressFormat
	}

	return Parse(c.ContactEmail.String)
}

// LedgerEntry is one row of the append-only send-result ledger. Entries are
// written exactly once per dispatch attempt and never updated.
type LedgerEntry struct {
	CompanyID      int64
	CompanyName    string
	RecipientEmail string
	JobTitle       string
	SentAt         time.Time
	Outcome        SendOutcome
	TrackingToken  string
	ErrorMessage   string
	Subject        string
}

// JournalRecord is one entry of the send-history journal. Records exist only
// for successful transmissions and cross-check the ledger.
type JournalRecord struct {
	CompanyID    int64  `json:"company_id"`
	CompanyName  string `json:"company_name"`
	EmailAddress string `json:"email_address"`
	SendTime     string `json:"send_time"`
	Pid          int    `json:"pid"`
	ScriptName   string `json:"script_name"`
}
