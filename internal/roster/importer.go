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

package roster

import (
	"context"
	"encoding/csv"
	"errors"
	"io"

	"github.com/spf13/afero"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/lukasdietrich/outreach/internal/database"
	"github.com/lukasdietrich/outreach/internal/log"
)

// Importer replaces the roster table with the contents of a csv file.
type Importer struct {
	database   database.Conn
	companyDao database.CompanyDao
	fs         afero.Fs
}

// NewImporter creates a new roster importer.
func NewImporter(conn database.Conn, companyDao database.CompanyDao) *Importer {
	return &Importer{
		database:   conn,
		companyDao: companyDao,
		fs:         afero.NewOsFs(),
	}
}

// ImportResult sums up a single import.
type ImportResult struct {
	Imported int
	Skipped  int
}

// Import reads the csv file and replaces the whole roster in one transaction.
// Malformed rows are logged and skipped, they never abort the import.
func (i *Importer) Import(ctx context.Context, filename string) (ImportResult, error) {
	var result ImportResult

	f, err := i.fs.Open(filename)
	if err != nil {
		return result, err
	}

	defer f.Close()

	r := csv.NewReader(transform.NewReader(f, unicode.UTF8BOM.NewDecoder()))
	r.FieldsPerRecord = -1

	tx, err := i.database.Begin(ctx)
	if err != nil {
		return result, err
	}

	defer tx.Rollback()

	if err := i.companyDao.DeleteAll(ctx, tx); err != nil {
		return result, err
	}

	for line := 1; ; line++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			log.Warn().
				Int("line", line).
				Err(err).
				Msg("skipping unparseable roster line")

			result.Skipped++
			continue
		}

		if line == 1 && len(record) > 0 && record[0] == header[0] {
			continue
		}

		company, err := unmarshalRow(record)
		if err != nil {
			log.Warn().
				Int("line", line).
				Err(err).
				Msg("skipping malformed roster row")

			result.Skipped++
			continue
		}

		if err := i.companyDao.Insert(ctx, tx, &company); err != nil {
			if database.IsErrUnique(err) {
				log.Warn().
					Int("line", line).
					Int64("company", company.ID).
					Msg("skipping duplicate roster id")

				result.Skipped++
				continue
			}

			return result, err
		}

		result.Imported++
	}

	if err := tx.Commit(); err != nil {
		return result, err
	}

	log.Info().
		Int("imported", result.Imported).
		Int("skipped", result.Skipped).
		Str("filename", filename).
		Msg("roster import complete")

	return result, nil
}
