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

package bounce

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/wire"
	"github.com/spf13/viper"

	"github.com/lukasdietrich/outreach/internal/database"
	"github.com/lukasdietrich/outreach/internal/log"
	"github.com/lukasdietrich/outreach/internal/models"
)

// WireSet is the provider set for the bounce package.
var WireSet = wire.NewSet(
	NewProcessedStore,
	NewReportWriter,
	NewMailboxDialer,
	NewScanner,
)

func init() {
	viper.SetDefault("bounce.scan.interval", "0s")
}

// Scanner pulls delivery-status notifications from the mailbox, applies them
// to the roster and writes a report per scan.
type Scanner struct {
	database   database.Conn
	companyDao database.CompanyDao
	processed  *ProcessedStore
	reports    *ReportWriter
	dial       MailboxDialer
	now        func() time.Time
}

// NewScanner wires a scanner from its collaborators.
func NewScanner(
	conn database.Conn,
	companyDao database.CompanyDao,
	processed *ProcessedStore,
	reports *ReportWriter,
	dial MailboxDialer,
) *Scanner {
	return &Scanner{
		database:   conn,
		companyDao: companyDao,
		processed:  processed,
		reports:    reports,
		dial:       dial,
		now:        time.Now,
	}
}

// Scan performs one pass over the mailbox. Notifications that cannot be
// parsed are counted but stay unprocessed, so a later scan with a better
// parser can retry them.
func (s *Scanner) Scan(ctx context.Context) (*Report, error) {
	processedSet, err := s.processed.Load()
	if err != nil {
		return nil, err
	}

	mailbox, err := s.dial()
	if err != nil {
		return nil, err
	}

	defer mailbox.Close()

	bounces, err := mailbox.FetchBounces()
	if err != nil {
		return nil, err
	}

	report := &Report{
		ProcessingDate: s.now().Format(time.RFC3339),
		BounceDetails:  []Detail{},
	}

	var (
		appliedIDs  []string
		appliedUIDs []uint32
	)

	for _, raw := range bounces {
		if raw.MessageID == "" || processedSet[raw.MessageID] {
			continue
		}

		report.TotalBounceEmails++

		ctx := log.WithMail(ctx, raw.MessageID)

		notification, err := ParseDSN(raw.Body)
		if err != nil {
			log.WarnContext(ctx).
				Str("subject", raw.Subject).
				Err(err).
				Msg("skipping unparseable notification")

			report.Summary.UnknownBounces++
			continue
		}

		detail, err := s.apply(ctx, &raw, notification)
		if err != nil {
			log.ErrorContext(ctx).
				Err(err).
				Msg("could not apply notification to roster")

			continue
		}

		report.BounceDetails = append(report.BounceDetails, *detail)

		switch notification.Classification {
		case models.BouncePermanent:
			report.Summary.PermanentBounces++
		case models.BounceTransient:
			report.Summary.TemporaryBounces++
		}

		appliedIDs = append(appliedIDs, raw.MessageID)
		appliedUIDs = append(appliedUIDs, raw.UID)
	}

	if err := s.processed.Add(appliedIDs...); err != nil {
		return nil, err
	}

	if err := mailbox.MarkSeen(appliedUIDs); err != nil {
		log.WarnContext(ctx).Err(err).Msg("could not flag applied notifications")
	}

	filename, err := s.reports.Write(report)
	if err != nil {
		return nil, err
	}

	log.InfoContext(ctx).
		Int("notifications", report.TotalBounceEmails).
		Int("permanent", report.Summary.PermanentBounces).
		Int("transient", report.Summary.TemporaryBounces).
		Int("unknown", report.Summary.UnknownBounces).
		Str("report", filename).
		Msg("mailbox scan finished")

	return report, nil
}

// apply updates all roster rows whose contact email matches the failed
// recipient. A permanent state on file is never downgraded to transient.
func (s *Scanner) apply(ctx context.Context, raw *RawBounce, notification *Notification) (*Detail, error) {
	detail := &Detail{
		MessageID:        raw.MessageID,
		Subject:          raw.Subject,
		BouncedAddresses: []string{notification.Recipient.String()},
		BounceType:       notification.Classification,
		Reason:           notification.Reason,
		ProcessedDate:    s.now().Format(time.RFC3339),
	}

	tx, err := s.database.Begin(ctx)
	if err != nil {
		return nil, err
	}

	defer tx.Rollback()

	companies, err := s.companyDao.FindByContactEmail(ctx, tx, notification.Recipient.String())
	if err != nil {
		return nil, err
	}

	for i := range companies {
		company := &companies[i]

		if company.BounceState == models.BouncePermanent &&
			notification.Classification == models.BounceTransient {
			continue
		}

		company.BounceState = notification.Classification
		company.BounceTime = sql.NullInt64{Int64: s.now().Unix(), Valid: true}
		company.BounceReason = sql.NullString{String: notification.Reason, Valid: true}

		if err := s.companyDao.UpdateBounceColumns(ctx, tx, company); err != nil {
			return nil, err
		}

		detail.Matched = true
		detail.CompanyID = company.ID

		log.InfoContext(log.WithCompany(ctx, company.ID)).
			Str("classification", string(notification.Classification)).
			Msg("bounce applied to roster row")
	}

	return detail, tx.Commit()
}

// RunPeriodic scans in a fixed interval until the context is cancelled. Scan
// errors are logged, the loop keeps going.
func (s *Scanner) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Scan(ctx); err != nil {
				log.ErrorContext(ctx).Err(err).Msg("mailbox scan failed")
			}
		}
	}
}
