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

// Package roster imports and exports the company table as a csv file. The
// file is the interchange format towards external tooling, the sqlite table
// stays the authoritative store.
package roster

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/wire"

	"github.com/lukasdietrich/outreach/internal/models"
)

// WireSet is the provider set for the roster package.
var WireSet = wire.NewSet(
	NewImporter,
	NewExporter,
)

// sentinelUnset marks an absent homepage or email in the csv file.
const sentinelUnset = "‐"

// timeLayout is the local timestamp format of the csv time columns.
const timeLayout = "2006-01-02 15:04:05"

// fieldCount is the exact number of csv fields per row. Rows of any other
// arity are rejected, never re-mapped.
const fieldCount = 16

var header = []string{
	"id",
	"name",
	"homepage",
	"contact_email",
	"job_titles",
	"bounce_state",
	"bounce_time",
	"bounce_reason",
	"unsubscribe_state",
	"unsubscribe_time",
	"unsubscribe_reason",
	"secondary_email",
	"last_send_status",
	"last_send_time",
	"last_error",
	"last_bounce_type",
}

func unmarshalRow(record []string) (models.CompanyEntity, error) {
	if len(record) != fieldCount {
		return models.CompanyEntity{}, fmt.Errorf(
			"roster: expected %d fields, got %d", fieldCount, len(record))
	}

	id, err := strconv.ParseInt(record[0], 10, 64)
	if err != nil || id < 1 {
		return models.CompanyEntity{}, fmt.Errorf("roster: invalid id %q", record[0])
	}

	if record[1] == "" {
		return models.CompanyEntity{}, fmt.Errorf("roster: empty name for id %d", id)
	}

	bounceTime, err := unmarshalTime(record[6])
	if err != nil {
		return models.CompanyEntity{}, err
	}

	unsubscribeTime, err := unmarshalTime(record[9])
	if err != nil {
		return models.CompanyEntity{}, err
	}

	lastSendTime, err := unmarshalTime(record[13])
	if err != nil {
		return models.CompanyEntity{}, err
	}

	return models.CompanyEntity{
		ID:                id,
		Name:              record[1],
		Homepage:          unmarshalSentinel(record[2]),
		ContactEmail:      unmarshalSentinel(record[3]),
		JobTitles:         record[4],
		BounceState:       models.BounceState(record[5]),
		BounceTime:        bounceTime,
		BounceReason:      unmarshalNullString(record[7]),
		UnsubscribeState:  models.UnsubscribeState(record[8]),
		UnsubscribeTime:   unsubscribeTime,
		UnsubscribeReason: unmarshalNullString(record[10]),
		SecondaryEmail:    unmarshalSentinel(record[11]),
		LastSendStatus:    models.SendStatus(record[12]),
		LastSendTime:      lastSendTime,
		LastError:         unmarshalNullString(record[14]),
		LastBounceType:    unmarshalNullString(record[15]),
	}, nil
}

func marshalRow(company *models.CompanyEntity) []string {
	return []string{
		strconv.FormatInt(company.ID, 10),
		company.Name,
		marshalSentinel(company.Homepage),
		marshalSentinel(company.ContactEmail),
		company.JobTitles,
		string(company.BounceState),
		marshalTime(company.BounceTime),
		company.BounceReason.String,
		string(company.UnsubscribeState),
		marshalTime(company.UnsubscribeTime),
		company.UnsubscribeReason.String,
		marshalSentinel(company.SecondaryEmail),
		string(company.LastSendStatus),
		marshalTime(company.LastSendTime),
		company.LastError.String,
		company.LastBounceType.String,
	}
}

func unmarshalSentinel(field string) sql.NullString {
	if field == "" || field == sentinelUnset {
		return sql.NullString{}
	}

	return sql.NullString{String: field, Valid: true}
}

func marshalSentinel(field sql.NullString) string {
	if !field.Valid {
		return sentinelUnset
	}

	return field.String
}

func unmarshalNullString(field string) sql.NullString {
	if field == "" {
		return sql.NullString{}
	}

	return sql.NullString{String: field, Valid: true}
}

func unmarshalTime(field string) (sql.NullInt64, error) {
	if field == "" {
		return sql.NullInt64{}, nil
	}

	t, err := time.ParseInLocation(timeLayout, field, time.Local)
	if err != nil {
		return sql.NullInt64{}, fmt.Errorf("roster: invalid time %q: %w", field, err)
	}

	return sql.NullInt64{Int64: t.Unix(), Valid: true}, nil
}

func marshalTime(field sql.NullInt64) string {
	if !field.Valid {
		return ""
	}

	return time.Unix(field.Int64, 0).Format(timeLayout)
}
