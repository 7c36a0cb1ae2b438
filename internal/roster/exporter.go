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

	"github.com/spf13/afero"

	"github.com/lukasdietrich/outreach/internal/database"
	"github.com/lukasdietrich/outreach/internal/log"
)

// Exporter writes the roster table into a csv file.
type Exporter struct {
	database   database.Conn
	companyDao database.CompanyDao
	fs         afero.Fs
}

// NewExporter creates a new roster exporter.
func NewExporter(conn database.Conn, companyDao database.CompanyDao) *Exporter {
	return &Exporter{
		database:   conn,
		companyDao: companyDao,
		fs:         afero.NewOsFs(),
	}
}

// Export writes the whole roster in ascending id order. The file starts with
// a utf-8 byte order mark and a header row.
func (e *Exporter) Export(ctx context.Context, filename string) error {
	companySlice, err := e.companyDao.FindAll(ctx, e.database)
	if err != nil {
		return err
	}

	f, err := e.fs.Create(filename)
	if err != nil {
		return err
	}

	if _, err := f.WriteString("\ufeff"); err != nil {
		f.Close()
		return err
	}

	w := csv.NewWriter(f)

	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}

	for _, company := range companySlice {
		if err := w.Write(marshalRow(&company)); err != nil {
			f.Close()
			return err
		}
	}

	w.Flush()

	if err := w.Error(); err != nil {
		f.Close()
		return err
	}

	log.Info().
		Int("companies", len(companySlice)).
		Str("filename", filename).
		Msg("roster export complete")

	return f.Close()
}
