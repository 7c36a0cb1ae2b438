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

// Package unsubscribe applies opt-out requests from an external feed to the
// roster.
package unsubscribe

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/wire"
	"github.com/spf13/afero"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/lukasdietrich/outreach/internal/database"
	"github.com/lukasdietrich/outreach/internal/log"
	"github.com/lukasdietrich/outreach/internal/models"
)

// WireSet is the provider set for the unsubscribe package.
var WireSet = wire.NewSet(
	NewIntake,
)

// feed columns in order.
const (
	columnTimestamp = iota
	columnEmail
	columnCompany
	columnReason
	columnCount
)

const timeLayout = "2006-01-02 15:04:05"

// Result counts what one feed application did.
type Result struct {
	Applied   int
	Unchanged int
	Unmatched int
	Malformed int
}

// Intake reads an opt-out feed and flags the matching roster rows. Applying
// the same feed twice is a no-op.
type Intake struct {
	database   database.Conn
	companyDao database.CompanyDao
	fs         afero.Fs
	now        func() time.Time
}

// NewIntake wires an intake from its collaborators.
func NewIntake(conn database.Conn, companyDao database.CompanyDao, fs afero.Fs) *Intake {
	return &Intake{
		database:   conn,
		companyDao: companyDao,
		fs:         fs,
		now:        time.Now,
	}
}

// Apply reads the csv feed "timestamp,email,company,reason" and unsubscribes
// every matching roster row. Malformed rows are logged and skipped.
func (i *Intake) Apply(ctx context.Context, filename string) (Result, error) {
	var result Result

	f, err := i.fs.Open(filename)
	if err != nil {
		return result, fmt.Errorf("unsubscribe: could not open feed: %w", err)
	}

	defer f.Close()

	reader := csv.NewReader(transform.NewReader(f, unicode.UTF8BOM.NewDecoder()))
	reader.FieldsPerRecord = -1

	tx, err := i.database.Begin(ctx)
	if err != nil {
		return result, err
	}

	defer tx.Rollback()

	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			log.WarnContext(ctx).
				Int("line", line).
				Err(err).
				Msg("skipping malformed feed row")

			result.Malformed++
			continue
		}

		if line == 1 && record[columnTimestamp] == "timestamp" {
			continue
		}

		if err := i.applyRow(ctx, tx, record, &result); err != nil {
			return result, err
		}
	}

	return result, tx.Commit()
}

func (i *Intake) applyRow(
	ctx context.Context,
	tx database.Tx,
	record []string,
	result *Result,
) error {
	if len(record) != columnCount {
		result.Malformed++
		return nil
	}

	var (
		email   = strings.TrimSpace(record[columnEmail])
		company = strings.TrimSpace(record[columnCompany])
		reason  = strings.TrimSpace(record[columnReason])
	)

	requestTime := i.now()
	if parsed, err := time.ParseInLocation(timeLayout, record[columnTimestamp], time.Local); err == nil {
		requestTime = parsed
	}

	companies, err := i.companyDao.FindByEmailOrName(ctx, tx, email, company)
	if err != nil {
		return err
	}

	if len(companies) == 0 {
		log.WarnContext(ctx).
			Str("email", email).
			Str("name", company).
			Msg("opt-out request matches no roster row")

		result.Unmatched++
		return nil
	}

	for index := range companies {
		row := &companies[index]

		if row.UnsubscribeState == models.Unsubscribed {
			result.Unchanged++
			continue
		}

		row.UnsubscribeState = models.Unsubscribed
		row.UnsubscribeTime = sql.NullInt64{Int64: requestTime.Unix(), Valid: true}

		if reason != "" {
			row.UnsubscribeReason = sql.NullString{String: reason, Valid: true}
		}

		if err := i.companyDao.UpdateUnsubscribeColumns(ctx, tx, row); err != nil {
			return err
		}

		log.InfoContext(log.WithCompany(ctx, row.ID)).
			Msg("roster row unsubscribed")

		result.Applied++
	}

	return nil
}
