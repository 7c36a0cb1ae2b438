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
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/google/wire"
	"github.com/spf13/viper"

	"github.com/lukasdietrich/outreach/internal/crypto"
	"github.com/lukasdietrich/outreach/internal/database"
	"github.com/lukasdietrich/outreach/internal/journal"
	"github.com/lukasdietrich/outreach/internal/ledger"
	"github.com/lukasdietrich/outreach/internal/log"
	"github.com/lukasdietrich/outreach/internal/mailing"
	"github.com/lukasdietrich/outreach/internal/models"
	"github.com/lukasdietrich/outreach/internal/suppression"
)

// WireSet is the provider set for the delivery package.
var WireSet = wire.NewSet(
	NewDispatcher,
	NewRegistry,
	NewController,
)

func init() {
	viper.SetDefault("delivery.pacing.intermessagedelay", "8s")
	viper.SetDefault("delivery.pacing.interbatchdelay", "2m")
	viper.SetDefault("delivery.pacing.batchsize", 10)
	viper.SetDefault("delivery.rowtimeout", "90s")
}

// Options bound a single campaign run.
type Options struct {
	// StartID and EndID select an inclusive id range. Zero means unbounded.
	StartID int64
	EndID   int64
	// Profile selects the message shape.
	Profile mailing.Profile
	// CheckDNS enables the mx lookup before each dispatch.
	CheckDNS bool
	// IncludeTransientBounced retries rows with a transient bounce on file.
	IncludeTransientBounced bool
}

// Summary is the aggregate of one finished run. Per-row failures are part of
// the summary, they do not fail the run.
type Summary struct {
	RunID       string
	Processed   int
	Sent        int
	Failed      int
	Skipped     map[suppression.Decision]int
	Interrupted bool
	Elapsed     time.Duration
}

// Controller iterates the configured roster slice in ascending id order and
// drives suppression, rendering, dispatch and bookkeeping for every row.
type Controller struct {
	database   database.Conn
	companyDao database.CompanyDao
	ledger     *ledger.Ledger
	journal    *journal.Journal
	renderer   *mailing.Renderer
	composer   *mailing.Composer
	dispatcher Dispatcher
	tokens     crypto.TokenGenerator
	registry   *Registry

	interMessageDelay time.Duration
	interBatchDelay   time.Duration
	batchSize         int
	rowTimeout        time.Duration

	lookupMX func(string) ([]*net.MX, error)
	now      func() time.Time
}

// NewController wires a controller from its collaborators and the pacing
// configuration.
func NewController(
	conn database.Conn,
	companyDao database.CompanyDao,
	sendLedger *ledger.Ledger,
	sendJournal *journal.Journal,
	renderer *mailing.Renderer,
	composer *mailing.Composer,
	dispatcher Dispatcher,
	tokens crypto.TokenGenerator,
	registry *Registry,
) *Controller {
	return &Controller{
		database:   conn,
		companyDao: companyDao,
		ledger:     sendLedger,
		journal:    sendJournal,
		renderer:   renderer,
		composer:   composer,
		dispatcher: dispatcher,
		tokens:     tokens,
		registry:   registry,

		interMessageDelay: viper.GetDuration("delivery.pacing.intermessagedelay"),
		interBatchDelay:   viper.GetDuration("delivery.pacing.interbatchdelay"),
		batchSize:         viper.GetInt("delivery.pacing.batchsize"),
		rowTimeout:        viper.GetDuration("delivery.rowtimeout"),

		lookupMX: net.LookupMX,
		now:      time.Now,
	}
}

// Run processes the selected roster slice once. Cancellation is honored
// between rows, the row in flight is always finished and recorded.
func (c *Controller) Run(ctx context.Context, opts Options) (*Summary, error) {
	summary := &Summary{
		RunID:   uuid.NewString(),
		Skipped: make(map[suppression.Decision]int),
	}

	ctx = log.WithRun(ctx, summary.RunID)
	started := c.now()

	defer c.dispatcher.Close()

	rows, err := c.loadRows(ctx, opts)
	if err != nil {
		return nil, err
	}

	projections, err := c.loadProjections()
	if err != nil {
		return nil, err
	}

	log.InfoContext(ctx).
		Int("rows", len(rows)).
		Str("profile", string(opts.Profile)).
		Msg("starting campaign run")

	policy := suppression.Options{IncludeTransientBounced: opts.IncludeTransientBounced}

	for i := range rows {
		if ctx.Err() != nil {
			summary.Interrupted = true
			break
		}

		row := &rows[i]
		rowCtx := log.WithCompany(ctx, row.ID)

		outcome, err := c.processRow(rowCtx, row, projections, policy, opts, summary)
		if err != nil {
			return nil, err
		}

		summary.Processed++
		c.publishProgress(summary, started, len(rows), row.ID, outcome, false)

		if i < len(rows)-1 {
			if err := c.pace(ctx, summary.Processed); err != nil {
				summary.Interrupted = true
				break
			}
		}
	}

	summary.Elapsed = c.now().Sub(started)
	c.publishProgress(summary, started, len(rows), lastRowID(rows, summary.Processed), "", true)

	log.InfoContext(ctx).
		Int("processed", summary.Processed).
		Int("sent", summary.Sent).
		Int("failed", summary.Failed).
		Bool("interrupted", summary.Interrupted).
		Dur("elapsed", summary.Elapsed).
		Msg("campaign run finished")

	return summary, nil
}

func lastRowID(rows []models.CompanyEntity, processed int) int64 {
	if processed == 0 || len(rows) == 0 {
		return 0
	}

	if processed > len(rows) {
		processed = len(rows)
	}

	return rows[processed-1].ID
}

func (c *Controller) loadRows(ctx context.Context, opts Options) ([]models.CompanyEntity, error) {
	tx, err := c.database.Begin(ctx)
	if err != nil {
		return nil, err
	}

	defer tx.Rollback()

	var rows []models.CompanyEntity

	if opts.StartID == 0 && opts.EndID == 0 {
		rows, err = c.companyDao.FindAll(ctx, tx)
	} else {
		end := opts.EndID
		if end == 0 {
			end = int64(1)<<62 - 1
		}

		rows, err = c.companyDao.FindRange(ctx, tx, opts.StartID, end)
	}

	if err != nil {
		return nil, err
	}

	return rows, tx.Commit()
}

func (c *Controller) loadProjections() (suppression.Projections, error) {
	alreadySent, err := c.ledger.AlreadySentIDs()
	if err != nil {
		return suppression.Projections{}, err
	}

	return suppression.Projections{AlreadySent: alreadySent}, nil
}

// processRow takes one roster row through suppression, dispatch and
// bookkeeping. The returned string is the progress outcome label. A
// bookkeeping error is fatal, dispatch results must never be lost.
func (c *Controller) processRow(
	ctx context.Context,
	row *models.CompanyEntity,
	projections suppression.Projections,
	policy suppression.Options,
	opts Options,
	summary *Summary,
) (string, error) {
	decision := suppression.Decide(row, projections, policy)

	if decision.IsSkip() {
		summary.Skipped[decision]++

		log.DebugContext(ctx).
			Str("decision", string(decision)).
			Msg("row suppressed")

		return string(decision), nil
	}

	result := c.attempt(ctx, row, opts)

	if err := c.record(ctx, row, result); err != nil {
		return "", fmt.Errorf("could not record dispatch result: %w", err)
	}

	if result.outcome == models.OutcomeSuccess {
		summary.Sent++
		projections.AlreadySent[row.ID] = struct{}{}
	} else {
		summary.Failed++
	}

	return string(result.outcome), nil
}

// attemptResult is everything a single dispatch attempt produces.
type attemptResult struct {
	outcome    models.SendOutcome
	recipient  string
	subject    string
	token      string
	bounceType string
	errMessage string
	rejected   bool
	sentAt     time.Time
}

func (c *Controller) attempt(ctx context.Context, row *models.CompanyEntity, opts Options) attemptResult {
	result := attemptResult{
		outcome: models.OutcomeFailed,
		sentAt:  c.now(),
	}

	token, err := c.tokens.GenerateToken()
	if err != nil {
		result.errMessage = err.Error()
		return result
	}

	result.token = token

	mail, err := c.renderer.Render(row, opts.Profile, token)
	if err != nil {
		log.ErrorContext(ctx).Err(err).Msg("render failed")
		result.errMessage = err.Error()
		return result
	}

	result.recipient = mail.To.String()
	result.subject = mail.Subject

	if opts.CheckDNS {
		if _, err := c.lookupMX(mail.To.Domain()); err != nil {
			log.WarnContext(ctx).Err(err).Msg("mx lookup failed")
			result.bounceType = "transient"
			result.errMessage = "mx lookup: " + err.Error()
			return result
		}
	}

	msg, err := c.composer.Compose(mail)
	if err != nil {
		log.ErrorContext(ctx).Err(err).Msg("compose failed")
		result.errMessage = err.Error()
		return result
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, c.rowTimeout)
	defer cancel()

	err = c.dispatcher.Dispatch(dispatchCtx, msg)
	if err == nil {
		result.outcome = models.OutcomeSuccess
		return result
	}

	log.WarnContext(ctx).
		Str("mail", msg.MessageID).
		Err(err).
		Msg("dispatch failed")

	result.errMessage = err.Error()

	switch {
	case IsPermanentErr(err):
		result.bounceType = "permanent"
		result.rejected = IsRecipientRejectedErr(err)
	default:
		// exhausted retries, timeout or cancellation
		result.bounceType = "transient"

		if errors.Is(err, context.DeadlineExceeded) {
			result.errMessage = "dispatch timed out: " + err.Error()
		}
	}

	return result
}

// record appends the ledger entry, journals successes and updates the roster
// row. The roster update is a short transaction of its own, the files are
// flushed before it so an interrupt never loses a recorded attempt.
func (c *Controller) record(ctx context.Context, row *models.CompanyEntity, result attemptResult) error {
	entry := models.LedgerEntry{
		CompanyID:      row.ID,
		CompanyName:    row.Name,
		RecipientEmail: result.recipient,
		JobTitle:       row.PrimaryJobTitle(),
		SentAt:         result.sentAt,
		Outcome:        result.outcome,
		TrackingToken:  result.token,
		ErrorMessage:   result.errMessage,
		Subject:        result.subject,
	}

	if err := c.ledger.Append(&entry); err != nil {
		return err
	}

	if result.outcome == models.OutcomeSuccess {
		record := models.JournalRecord{
			CompanyID:    row.ID,
			CompanyName:  row.Name,
			EmailAddress: result.recipient,
			SendTime:     result.sentAt.Format("2006-01-02 15:04:05"),
			Pid:          os.Getpid(),
			ScriptName:   "outreach",
		}

		if err := c.journal.Append(&record); err != nil {
			return err
		}
	}

	return c.updateRow(ctx, row, result)
}

func (c *Controller) updateRow(ctx context.Context, row *models.CompanyEntity, result attemptResult) error {
	if result.outcome == models.OutcomeSuccess {
		row.LastSendStatus = models.SendSuccess
		row.LastError = sql.NullString{}
	} else {
		row.LastSendStatus = models.SendFailed
		row.LastError = sql.NullString{String: result.errMessage, Valid: true}
	}

	row.LastSendTime = sql.NullInt64{Int64: result.sentAt.Unix(), Valid: true}

	if result.bounceType != "" {
		row.LastBounceType = sql.NullString{String: result.bounceType, Valid: true}
	}

	tx, err := c.database.Begin(ctx)
	if err != nil {
		return err
	}

	defer tx.Rollback()

	if err := c.companyDao.UpdateSendColumns(ctx, tx, row); err != nil {
		return err
	}

	// Only an explicit recipient refusal flags the address without waiting
	// for a delivery-status notification.
	if result.rejected {
		row.BounceState = models.BouncePermanent
		row.BounceTime = sql.NullInt64{Int64: result.sentAt.Unix(), Valid: true}
		row.BounceReason = sql.NullString{String: "recipient rejected by relay", Valid: true}

		if err := c.companyDao.UpdateBounceColumns(ctx, tx, row); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// pace sleeps between rows and, on batch boundaries, between batches.
func (c *Controller) pace(ctx context.Context, processed int) error {
	delay := c.interMessageDelay

	if c.batchSize > 0 && processed%c.batchSize == 0 {
		delay = c.interBatchDelay
	}

	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Controller) publishProgress(
	summary *Summary,
	started time.Time,
	total int,
	lastID int64,
	lastOutcome string,
	done bool,
) {
	c.registry.Update(ProgressEvent{
		RunID:          summary.RunID,
		StartedAt:      started,
		Processed:      summary.Processed,
		Total:          total,
		LastID:         lastID,
		LastOutcome:    lastOutcome,
		ElapsedSeconds: c.now().Sub(started).Seconds(),
		Done:           done,
	})
}
