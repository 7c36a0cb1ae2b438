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

package delivery

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/lukasdietrich/outreach/internal/crypto"
	"github.com/lukasdietrich/outreach/internal/database"
	"github.com/lukasdietrich/outreach/internal/journal"
	"github.com/lukasdietrich/outreach/internal/ledger"
	"github.com/lukasdietrich/outreach/internal/mailing"
	"github.com/lukasdietrich/outreach/internal/models"
	"github.com/lukasdietrich/outreach/internal/suppression"
)

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, msg *mailing.OutboundMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *mockDispatcher) Close() error {
	return m.Called().Error(0)
}

func TestControllerTestSuite(t *testing.T) {
	suite.Run(t, new(ControllerTestSuite))
}

type ControllerTestSuite struct {
	suite.Suite

	ctx        context.Context
	conn       database.Conn
	companyDao database.CompanyDao
	ledger     *ledger.Ledger
	journal    *journal.Journal
	dispatcher *mockDispatcher
	registry   *Registry
	controller *Controller
}

func (s *ControllerTestSuite) SetupTest() {
	dir := s.T().TempDir()

	viper.Set("storage.database.filename", ":memory:")
	viper.Set("storage.database.journalmode", "memory")
	viper.Set("storage.ledger.filename", filepath.Join(dir, "ledger.csv"))
	viper.Set("storage.journal.filename", filepath.Join(dir, "journal.json"))

	viper.Set("mailing.templates.html", "templates/mail.html")
	viper.Set("mailing.templates.text", "templates/mail.txt")
	viper.Set("mailing.subject", "{{ job_position }} at {{ company_name }}")
	viper.Set("mailing.tracking.pixelurl", "")
	viper.Set("mailing.sender.address", "talent@corp.example")
	viper.Set("mailing.sender.name", "Jane Recruiter")
	viper.Set("mailing.replyto", "")

	viper.Set("delivery.pacing.intermessagedelay", "0s")
	viper.Set("delivery.pacing.interbatchdelay", "0s")
	viper.Set("delivery.pacing.batchsize", 0)
	viper.Set("delivery.rowtimeout", "5s")

	conn, err := database.OpenConnection()
	s.Require().NoError(err)

	fs := afero.NewMemMapFs()
	s.Require().NoError(afero.WriteFile(fs, "templates/mail.html",
		[]byte(`<p>Dear {{ company_name }}, about {{ job_position }}.</p>`), 0644))
	s.Require().NoError(afero.WriteFile(fs, "templates/mail.txt",
		[]byte("Dear {{ company_name }}, about {{ job_position }}.\n"), 0644))

	renderer, err := mailing.NewRenderer(fs)
	s.Require().NoError(err)

	composer, err := mailing.NewComposer()
	s.Require().NoError(err)

	sendLedger, err := ledger.NewLedger()
	s.Require().NoError(err)

	sendJournal, err := journal.NewJournal()
	s.Require().NoError(err)

	s.ctx = context.Background()
	s.conn = conn
	s.companyDao = database.NewCompanyDao()
	s.ledger = sendLedger
	s.journal = sendJournal
	s.dispatcher = new(mockDispatcher)
	s.registry = NewRegistry()

	s.controller = NewController(
		conn,
		s.companyDao,
		sendLedger,
		sendJournal,
		renderer,
		composer,
		s.dispatcher,
		crypto.NewTokenGenerator(),
		s.registry,
	)

	s.dispatcher.On("Close").Return(nil)
	s.insertFixtures()
}

func (s *ControllerTestSuite) TearDownTest() {
	s.Require().NoError(s.conn.Close())
}

func (s *ControllerTestSuite) insertFixtures() {
	tx, err := s.conn.Begin(s.ctx)
	s.Require().NoError(err)

	companies := []models.CompanyEntity{
		{
			ID:           1,
			Name:         "Acme K.K.",
			ContactEmail: sql.NullString{String: "hr@acme.example", Valid: true},
			JobTitles:    "Engineer",
		},
		{
			ID:               2,
			Name:             "Globex",
			ContactEmail:     sql.NullString{String: "jobs@globex.example", Valid: true},
			JobTitles:        "Designer",
			UnsubscribeState: models.Unsubscribed,
		},
		{
			ID:           3,
			Name:         "Initech",
			ContactEmail: sql.NullString{String: "gone@initech.example", Valid: true},
			JobTitles:    "Engineer",
			BounceState:  models.BouncePermanent,
		},
		{
			ID:        5,
			Name:      "Hooli",
			JobTitles: "Engineer",
		},
		{
			ID:           6,
			Name:         "Umbrella",
			ContactEmail: sql.NullString{String: "talent@umbrella.example", Valid: true},
			JobTitles:    "Researcher",
		},
	}

	for i := range companies {
		s.Require().NoError(s.companyDao.Insert(s.ctx, tx, &companies[i]))
	}

	s.Require().NoError(tx.Commit())
}

func (s *ControllerTestSuite) findCompany(id int64) models.CompanyEntity {
	tx, err := s.conn.Begin(s.ctx)
	s.Require().NoError(err)

	defer tx.Rollback()

	company, err := s.companyDao.FindByID(s.ctx, tx, id)
	s.Require().NoError(err)

	return company
}

func (s *ControllerTestSuite) TestRunSendsEligibleRows() {
	s.dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(nil)

	summary, err := s.controller.Run(s.ctx, Options{Profile: mailing.ProfileAntiSpam})
	s.Require().NoError(err)

	s.Assert().Equal(5, summary.Processed)
	s.Assert().Equal(2, summary.Sent)
	s.Assert().Equal(0, summary.Failed)
	s.Assert().Equal(1, summary.Skipped[suppression.DecisionSkipUnsubscribed])
	s.Assert().Equal(1, summary.Skipped[suppression.DecisionSkipBouncedPermanent])
	s.Assert().Equal(1, summary.Skipped[suppression.DecisionSkipMissingAddress])
	s.Assert().False(summary.Interrupted)

	entries, err := s.ledger.ReadAll()
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Assert().Equal(models.OutcomeSuccess, entries[0].Outcome)
	s.Assert().Equal("Engineer at Acme K.K.", entries[0].Subject)
	s.Assert().NotEmpty(entries[0].TrackingToken)

	records, err := s.journal.ReadAll()
	s.Require().NoError(err)
	s.Assert().Len(records, 2)

	company := s.findCompany(1)
	s.Assert().Equal(models.SendSuccess, company.LastSendStatus)
	s.Assert().True(company.LastSendTime.Valid)

	s.dispatcher.AssertNumberOfCalls(s.T(), "Dispatch", 2)
}

func (s *ControllerTestSuite) TestRunRecordsRecipientRejection() {
	s.dispatcher.On("Dispatch", mock.Anything, mock.MatchedBy(func(msg *mailing.OutboundMessage) bool {
		return msg.To.String() == "hr@acme.example"
	})).Return(&PermanentError{RecipientRejected: true, err: errors.New("550 no such user")})
	s.dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(nil)

	summary, err := s.controller.Run(s.ctx, Options{Profile: mailing.ProfileAntiSpam})
	s.Require().NoError(err)

	s.Assert().Equal(1, summary.Sent)
	s.Assert().Equal(1, summary.Failed)

	company := s.findCompany(1)
	s.Assert().Equal(models.SendFailed, company.LastSendStatus)
	s.Assert().Equal(models.BouncePermanent, company.BounceState)
	s.Assert().Equal("permanent", company.LastBounceType.String)

	// only the successful dispatch ends up in the journal
	records, err := s.journal.ReadAll()
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Assert().Equal(int64(6), records[0].CompanyID)
}

func (s *ControllerTestSuite) TestRunAlreadySentIsSuppressed() {
	s.Require().NoError(s.ledger.Append(&models.LedgerEntry{
		CompanyID:   1,
		CompanyName: "Acme K.K.",
		SentAt:      time.Now(),
		Outcome:     models.OutcomeSuccess,
	}))

	s.dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(nil)

	summary, err := s.controller.Run(s.ctx, Options{Profile: mailing.ProfileAntiSpam})
	s.Require().NoError(err)

	s.Assert().Equal(1, summary.Sent)
	s.Assert().Equal(1, summary.Skipped[suppression.DecisionSkipAlreadySent])
	s.dispatcher.AssertNumberOfCalls(s.T(), "Dispatch", 1)
}

func (s *ControllerTestSuite) TestRunRange() {
	s.dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(nil)

	summary, err := s.controller.Run(s.ctx, Options{
		StartID: 1,
		EndID:   3,
		Profile: mailing.ProfileAntiSpam,
	})
	s.Require().NoError(err)

	s.Assert().Equal(3, summary.Processed)
	s.Assert().Equal(1, summary.Sent)
}

func (s *ControllerTestSuite) TestRunDNSPreflight() {
	s.controller.lookupMX = func(string) ([]*net.MX, error) {
		return nil, errors.New("no such host")
	}

	summary, err := s.controller.Run(s.ctx, Options{
		Profile:  mailing.ProfileAntiSpam,
		CheckDNS: true,
	})
	s.Require().NoError(err)

	s.Assert().Equal(0, summary.Sent)
	s.Assert().Equal(2, summary.Failed)
	s.dispatcher.AssertNotCalled(s.T(), "Dispatch", mock.Anything, mock.Anything)

	company := s.findCompany(1)
	s.Assert().Equal("transient", company.LastBounceType.String)
	s.Assert().Contains(company.LastError.String, "mx lookup")
}

func (s *ControllerTestSuite) TestRunHonorsCancellation() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	summary, err := s.controller.Run(ctx, Options{Profile: mailing.ProfileAntiSpam})
	s.Require().NoError(err)

	s.Assert().True(summary.Interrupted)
	s.Assert().Zero(summary.Processed)
	s.dispatcher.AssertNotCalled(s.T(), "Dispatch", mock.Anything, mock.Anything)
}

func (s *ControllerTestSuite) TestRunPublishesProgress() {
	s.dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(nil)

	summary, err := s.controller.Run(s.ctx, Options{Profile: mailing.ProfileAntiSpam})
	s.Require().NoError(err)

	events := s.registry.List()
	s.Require().Len(events, 1)

	s.Assert().Equal(summary.RunID, events[0].RunID)
	s.Assert().Equal(summary.Processed, events[0].Processed)
	s.Assert().Equal(5, events[0].Total)
	s.Assert().True(events[0].Done)
}

func (s *ControllerTestSuite) TestRunHaltsWhenJournalWriteFails() {
	// a directory in place of the journal file makes every append fail
	viper.Set("storage.journal.filename", s.T().TempDir())

	brokenJournal, err := journal.NewJournal()
	s.Require().NoError(err)

	s.controller.journal = brokenJournal
	s.dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(nil)

	summary, err := s.controller.Run(s.ctx, Options{Profile: mailing.ProfileAntiSpam})
	s.Require().Error(err)
	s.Assert().Contains(err.Error(), "could not record dispatch result")
	s.Assert().Nil(summary)
}
