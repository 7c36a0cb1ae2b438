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

// Package journal keeps the append-only history of successful transmissions.
// It exists separately from the ledger so the two can be cross-checked.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/wire"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/lukasdietrich/outreach/internal/log"
	"github.com/lukasdietrich/outreach/internal/models"
)

// WireSet is the provider set for the journal package.
var WireSet = wire.NewSet(
	NewJournal,
)

func init() {
	viper.SetDefault("storage.journal.filename", "data/journal.json")
}

type fileFormat struct {
	SendingRecords []models.JournalRecord `json:"sending_records"`
}

// Journal is the send-history store. Every append rewrites the file through a
// temporary sibling and an atomic rename.
type Journal struct {
	fs       afero.Fs
	filename string
	mutex    sync.Mutex
}

// NewJournal creates a journal store using configuration from viper.
//
// `storage.journal.filename` is the json file holding the history.
func NewJournal() (*Journal, error) {
	filename := viper.GetString("storage.journal.filename")

	if err := os.MkdirAll(filepath.Dir(filename), 0700); err != nil {
		return nil, err
	}

	return newJournalFs(afero.NewOsFs(), filename), nil
}

func newJournalFs(fs afero.Fs, filename string) *Journal {
	return &Journal{fs: fs, filename: filename}
}

// Append adds a single record to the history.
func (j *Journal) Append(record *models.JournalRecord) error {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	data, err := j.readLocked()
	if err != nil {
		return err
	}

	data.SendingRecords = append(data.SendingRecords, *record)

	if err := j.writeLocked(data); err != nil {
		return err
	}

	log.Debug().
		Int64("company", record.CompanyID).
		Str("sendTime", record.SendTime).
		Msg("appended journal record")

	return nil
}

// ReadAll returns every record of the history. A missing file is an empty
// history.
func (j *Journal) ReadAll() ([]models.JournalRecord, error) {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	data, err := j.readLocked()
	if err != nil {
		return nil, err
	}

	return data.SendingRecords, nil
}

// Recent returns the up to n newest records, newest first.
func (j *Journal) Recent(n int) ([]models.JournalRecord, error) {
	recordSlice, err := j.ReadAll()
	if err != nil {
		return nil, err
	}

	var recent []models.JournalRecord

	for i := len(recordSlice) - 1; i >= 0 && len(recent) < n; i-- {
		recent = append(recent, recordSlice[i])
	}

	return recent, nil
}

func (j *Journal) readLocked() (fileFormat, error) {
	var data fileFormat

	raw, err := afero.ReadFile(j.fs, j.filename)
	if err != nil {
		if os.IsNotExist(err) {
			return data, nil
		}

		return data, err
	}

	if err := json.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("journal: malformed file %q: %w", j.filename, err)
	}

	return data, nil
}

func (j *Journal) writeLocked(data fileFormat) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	tempname := j.filename + ".tmp"

	if err := afero.WriteFile(j.fs, tempname, raw, 0600); err != nil {
		return err
	}

	if err := j.fs.Rename(tempname, j.filename); err != nil {
		// afero.MemMapFs refuses to replace an existing file on rename
		if removeErr := j.fs.Remove(j.filename); removeErr != nil {
			return err
		}

		return j.fs.Rename(tempname, j.filename)
	}

	return nil
}
