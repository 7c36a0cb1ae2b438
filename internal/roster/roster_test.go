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
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/suite"

	"github.com/lukasdietrich/outreach/internal/database"
)

func TestRosterTestSuite(t *testing.T) {
	suite.Run(t, new(RosterTestSuite))
}

type RosterTestSuite struct {
	suite.Suite

	ctx      context.Context
	conn     database.Conn
	fs       afero.Fs
	importer *Importer
	exporter *Exporter
}

func (s *RosterTestSuite) SetupTest() {
	viper.Set("storage.database.filename", ":memory:")
	viper.Set("storage.database.journalmode", "memory")

	conn, err := database.OpenConnection()
	s.Require().NoError(err)

	companyDao := database.NewCompanyDao()
	fs := afero.NewMemMapFs()

	s.ctx = context.Background()
	s.conn = conn
	s.fs = fs
	s.importer = &Importer{database: conn, companyDao: companyDao, fs: fs}
	s.exporter = &Exporter{database: conn, companyDao: companyDao, fs: fs}
}

func (s *RosterTestSuite) TearDownTest() {
	s.Require().NoError(s.conn.Close())
}

const rosterFixture = "\ufeff" +
	"id,name,homepage,contact_email,job_titles,bounce_state,bounce_time,bounce_reason," +
	"unsubscribe_state,unsubscribe_time,unsubscribe_reason,secondary_email," +
	"last_send_status,last_send_time,last_error,last_bounce_type\n" +
	"42,Acme K.K.,https://acme.example,hr@acme.example,Engineer/Designer,,,,,,,‐,,,,\n" +
	"43,Globex,‐,‐,Backend Developer,permanent,2024-04-02 12:30:00,user unknown,,,,‐,,,,\n" +
	"44,broken row with too few fields\n" +
	"45,,‐,‐,Engineer,,,,,,,‐,,,,\n"

func (s *RosterTestSuite) TestImport() {
	s.Require().NoError(afero.WriteFile(s.fs, "roster.csv", []byte(rosterFixture), 0600))

	result, err := s.importer.Import(s.ctx, "roster.csv")
	s.Require().NoError(err)

	// row 44 has the wrong arity, row 45 an empty name
	s.Assert().Equal(2, result.Imported)
	s.Assert().Equal(2, result.Skipped)

	companyDao := database.NewCompanyDao()

	acme, err := companyDao.FindByID(s.ctx, s.conn, 42)
	s.Require().NoError(err)
	s.Assert().Equal("Acme K.K.", acme.Name)
	s.Assert().Equal("hr@acme.example", acme.ContactEmail.String)
	s.Assert().Equal("Engineer", acme.PrimaryJobTitle())

	globex, err := companyDao.FindByID(s.ctx, s.conn, 43)
	s.Require().NoError(err)
	s.Assert().False(globex.ContactEmail.Valid)
	s.Assert().EqualValues("permanent", globex.BounceState)
	s.Assert().True(globex.BounceTime.Valid)
}

func (s *RosterTestSuite) TestImportReplacesExistingRows() {
	s.Require().NoError(afero.WriteFile(s.fs, "roster.csv", []byte(rosterFixture), 0600))

	_, err := s.importer.Import(s.ctx, "roster.csv")
	s.Require().NoError(err)

	result, err := s.importer.Import(s.ctx, "roster.csv")
	s.Require().NoError(err)
	s.Assert().Equal(2, result.Imported)
}

func (s *RosterTestSuite) TestImportMissingFile() {
	_, err := s.importer.Import(s.ctx, "does-not-exist.csv")
	s.Assert().Error(err)
}

func (s *RosterTestSuite) TestExportRoundTrip() {
	s.Require().NoError(afero.WriteFile(s.fs, "roster.csv", []byte(rosterFixture), 0600))

	_, err := s.importer.Import(s.ctx, "roster.csv")
	s.Require().NoError(err)

	s.Require().NoError(s.exporter.Export(s.ctx, "export.csv"))

	raw, err := afero.ReadFile(s.fs, "export.csv")
	s.Require().NoError(err)

	content := string(raw)
	s.Assert().True(strings.HasPrefix(content, "\ufeff"))
	s.Assert().Contains(content, "42,Acme K.K.,https://acme.example,hr@acme.example")
	s.Assert().Contains(content, "43,Globex,‐,‐,Backend Developer,permanent")

	// importing the export again yields the same roster
	result, err := s.importer.Import(s.ctx, "export.csv")
	s.Require().NoError(err)
	s.Assert().Equal(2, result.Imported)
	s.Assert().Equal(0, result.Skipped)
}
