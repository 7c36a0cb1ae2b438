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

package database

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/lukasdietrich/outreach/internal/models"
)

func TestCompanyDaoTestSuite(t *testing.T) {
	suite.Run(t, new(CompanyDaoTestSuite))
}

type CompanyDaoTestSuite struct {
	baseDatabaseTestSuite

	companyDao CompanyDao
}

func (s *CompanyDaoTestSuite) SetupSuite() {
	s.companyDao = NewCompanyDao()
}

func (s *CompanyDaoTestSuite) insertFixtures() {
	s.requireExec(
		`
			insert into "companies"
				( "id", "name", "contact_email", "job_titles" )
			values
				( 1, 'Acme K.K.', 'hr@acme.example', 'Engineer/Designer' ) ,
				( 2, 'Globex', 'JOBS@globex.example', 'Backend Developer' ) ,
				( 4, 'Initech', null, 'Engineer' ) ;
		`)
}

func (s *CompanyDaoTestSuite) TestInsert() {
	company := models.CompanyEntity{
		ID:           42,
		Name:         "Acme K.K.",
		ContactEmail: sql.NullString{String: "hr@acme.example", Valid: true},
		JobTitles:    "Engineer/Designer",
	}

	s.Assert().NoError(s.companyDao.Insert(s.ctx, s.conn, &company))

	s.assertQuery(
		`
			select "id", "name", "contact_email", "job_titles", "bounce_state"
			from "companies" ;
		`,
		[]string{"42", "Acme K.K.", "hr@acme.example", "Engineer/Designer", ""},
	)
}

func (s *CompanyDaoTestSuite) TestInsertDuplicate() {
	s.insertFixtures()

	err := s.companyDao.Insert(s.ctx, s.conn, &models.CompanyEntity{ID: 1, Name: "Duplicate"})
	s.Assert().True(IsErrUnique(err))
}

func (s *CompanyDaoTestSuite) TestFindByID() {
	s.insertFixtures()

	company, err := s.companyDao.FindByID(s.ctx, s.conn, 2)
	s.Require().NoError(err)
	s.Assert().Equal("Globex", company.Name)

	_, err = s.companyDao.FindByID(s.ctx, s.conn, 3)
	s.Assert().True(IsErrNoRows(err))
}

func (s *CompanyDaoTestSuite) TestFindRange() {
	s.insertFixtures()

	companies, err := s.companyDao.FindRange(s.ctx, s.conn, 2, 4)
	s.Require().NoError(err)
	s.Require().Len(companies, 2)

	// gaps in the id sequence are tolerated
	s.Assert().EqualValues(2, companies[0].ID)
	s.Assert().EqualValues(4, companies[1].ID)
}

func (s *CompanyDaoTestSuite) TestFindByContactEmail() {
	s.insertFixtures()

	companies, err := s.companyDao.FindByContactEmail(s.ctx, s.conn, " jobs@GLOBEX.example ")
	s.Require().NoError(err)
	s.Require().Len(companies, 1)
	s.Assert().EqualValues(2, companies[0].ID)
}

func (s *CompanyDaoTestSuite) TestFindByEmailOrName() {
	s.insertFixtures()

	companies, err := s.companyDao.FindByEmailOrName(s.ctx, s.conn, "nobody@example.com", "initech")
	s.Require().NoError(err)
	s.Require().Len(companies, 1)
	s.Assert().EqualValues(4, companies[0].ID)
}

func (s *CompanyDaoTestSuite) TestUpdateSendColumns() {
	s.insertFixtures()

	company := models.CompanyEntity{
		ID:             1,
		LastSendStatus: models.SendSuccess,
		LastSendTime:   sql.NullInt64{Int64: 1700000000, Valid: true},
	}

	s.Assert().NoError(s.companyDao.UpdateSendColumns(s.ctx, s.conn, &company))

	s.assertQuery(
		`
			select "last_send_status", "last_send_time", "bounce_state"
			from "companies" where "id" = 1 ;
		`,
		[]string{"success", "1700000000", ""},
	)
}

func (s *CompanyDaoTestSuite) TestUpdateBounceColumns() {
	s.insertFixtures()

	company := models.CompanyEntity{
		ID:             2,
		BounceState:    models.BouncePermanent,
		BounceTime:     sql.NullInt64{Int64: 1700000000, Valid: true},
		BounceReason:   sql.NullString{String: "550 5.1.1 user unknown", Valid: true},
		LastBounceType: sql.NullString{String: "permanent", Valid: true},
	}

	s.Assert().NoError(s.companyDao.UpdateBounceColumns(s.ctx, s.conn, &company))

	s.assertQuery(
		`
			select "bounce_state", "bounce_reason", "last_send_status"
			from "companies" where "id" = 2 ;
		`,
		[]string{"permanent", "550 5.1.1 user unknown", ""},
	)
}

func (s *CompanyDaoTestSuite) TestUpdateUnsubscribeColumns() {
	s.insertFixtures()

	company := models.CompanyEntity{
		ID:                1,
		UnsubscribeState:  models.Unsubscribed,
		UnsubscribeTime:   sql.NullInt64{Int64: 1700000000, Valid: true},
		UnsubscribeReason: sql.NullString{String: "form request", Valid: true},
	}

	s.Assert().NoError(s.companyDao.UpdateUnsubscribeColumns(s.ctx, s.conn, &company))

	s.assertQuery(
		`
			select "unsubscribe_state", "unsubscribe_reason"
			from "companies" where "id" = 1 ;
		`,
		[]string{"unsubscribed", "form request"},
	)
}

func (s *CompanyDaoTestSuite) TestUpdateMissingRow() {
	company := models.CompanyEntity{ID: 99}
	s.Assert().True(IsErrNoRows(s.companyDao.UpdateSendColumns(s.ctx, s.conn, &company)))
}

func (s *CompanyDaoTestSuite) TestDeleteAll() {
	s.insertFixtures()

	s.Assert().NoError(s.companyDao.DeleteAll(s.ctx, s.conn))
	s.assertQuery(`select count(*) from "companies" ;`, []string{"0"})
}
