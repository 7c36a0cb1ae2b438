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

// Package ledger persists one row per dispatch attempt in an append-only csv
// file. Rows are never updated in place.
package ledger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/wire"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/lukasdietrich/outreach/internal/log"
	"github.com/lukasdietrich/outreach/internal/models"
	"github.com/lukasdietrich/outreach/internal/suppression"
)

// WireSet is the provider set for the ledger package.
var WireSet = wire.NewSet(
	NewLedger,
)

func init() {
	viper.SetDefault("storage.ledger.filename", "data/ledger.csv")
}

// timeLayout is the local timestamp format of the "sent_at" column.
const timeLayout = "2006-01-02 15:04:05"

var header = []string{
	"company_id",
	"company_name",
	"recipient_email",
	"job_title",
	"sent_at",
	"outcome",
	"tracking_token",
	"error_message",
	"subject",
}

// Ledger is the append-only send-result store. Appends are serialized by an
// in-process mutex and written in a single call, so concurrent controllers in
// the same process never interleave rows.
type Ledger struct {
	fs       afero.Fs
	filename string
	mutex    sync.Mutex
}

// NewLedger creates a ledger store using configuration from viper.
//
// `storage.ledger.filename` is the csv file holding the send results.
func NewLedger() (*Ledger, error) {
	filename := viper.GetString("storage.ledger.filename")

	if err := os.MkdirAll(filepath.Dir(filename), 0700); err != nil {
		return nil, err
	}

	return newLedgerFs(afero.NewOsFs(), filename), nil
}

func newLedgerFs(fs afero.Fs, filename string) *Ledger {
	return &Ledger{fs: fs, filename: filename}
}

// Append writes a single entry to the end of the ledger file. The file is
// created with a utf-8 byte order mark and a header row on first use.
func (l *Ledger) Append(entry *models.LedgerEntry) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	exists, err := afero.Exists(l.fs, l.filename)
	if err != nil {
		return err
	}

	f, err := l.fs.OpenFile(l.filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)

	if !exists {
		if _, err := f.WriteString("\ufeff"); err != nil {
			f.Close()
			return err
		}

		if err := w.Write(header); err != nil {
			f.Close()
			return err
		}
	}

	if err := w.Write(marshalEntry(entry)); err != nil {
		f.Close()
		return err
	}

	w.Flush()

	if err := w.Error(); err != nil {
		f.Close()
		return err
	}

	log.Debug().
		Int64("company", entry.CompanyID).
		Str("outcome", string(entry.Outcome)).
		Msg("appended ledger entry")

	return f.Close()
}

// ReadAll parses the whole ledger file. A missing file is an empty ledger.
func (l *Ledger) ReadAll() ([]models.LedgerEntry, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return l.readAllLocked()
}

func (l *Ledger) readAllLocked() ([]models.LedgerEntry, error) {
	f, err := l.fs.Open(l.filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, err
	}

	defer f.Close()

	r := csv.NewReader(transform.NewReader(f, unicode.UTF8BOM.NewDecoder()))
	r.FieldsPerRecord = len(header)

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("ledger: malformed file %q: %w", l.filename, err)
	}

	var entrySlice []models.LedgerEntry

	for i, record := range records {
		if i == 0 {
			continue // header
		}

		entry, err := unmarshalEntry(record)
		if err != nil {
			return nil, fmt.Errorf("ledger: row %d: %w", i, err)
		}

		entrySlice = append(entrySlice, entry)
	}

	return entrySlice, nil
}

// AlreadySentIDs projects the set of company ids with at least one successful
// attempt. The projection is set-valued, duplicate ledger rows are harmless.
func (l *Ledger) AlreadySentIDs() (suppression.IDSet, error) {
	entrySlice, err := l.ReadAll()
	if err != nil {
		return nil, err
	}

	set := make(suppression.IDSet)

	for _, entry := range entrySlice {
		if entry.Outcome == models.OutcomeSuccess {
			set[entry.CompanyID] = struct{}{}
		}
	}

	return set, nil
}

func marshalEntry(entry *models.LedgerEntry) []string {
	return []string{
		strconv.FormatInt(entry.CompanyID, 10),
		entry.CompanyName,
		entry.RecipientEmail,
		entry.JobTitle,
		entry.SentAt.Format(timeLayout),
		string(entry.Outcome),
		entry.TrackingToken,
		entry.ErrorMessage,
		entry.Subject,
	}
}

func unmarshalEntry(record []string) (models.LedgerEntry, error) {
	companyID, err := strconv.ParseInt(record[0], 10, 64)
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("invalid company_id %q: %w", record[0], err)
	}

	sentAt, err := time.ParseInLocation(timeLayout, record[4], time.Local)
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("invalid sent_at %q: %w", record[4], err)
	}

	return models.LedgerEntry{
		CompanyID:      companyID,
		CompanyName:    record[1],
		RecipientEmail: record[2],
		JobTitle:       record[3],
		SentAt:         sentAt,
		Outcome:        models.SendOutcome(record[5]),
		TrackingToken:  record[6],
		ErrorMessage:   record[7],
		Subject:        record[8],
	}, nil
}
