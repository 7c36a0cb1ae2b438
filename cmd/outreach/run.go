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

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/lukasdietrich/outreach/internal/delivery"
	"github.com/lukasdietrich/outreach/internal/log"
	"github.com/lukasdietrich/outreach/internal/mailing"
	"github.com/lukasdietrich/outreach/internal/suppression"
)

type runCommand struct {
	Controller *delivery.Controller
}

// run processes the selected roster slice once. Per-row failures are counted
// in the summary, only setup or bookkeeping errors fail the command.
func (c *runCommand) run(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)

	var (
		startID = flags.Int64("start-id", 0, "First roster id to process (inclusive)")
		endID   = flags.Int64("end-id", 0, "Last roster id to process (inclusive)")
		profile = flags.String("profile", string(mailing.ProfileAntiSpam),
			`Message profile ("anti-spam" or "tracking")`)
		skipDNS = flags.Bool("skip-dns", true,
			"Skip the mx lookup before each dispatch")
		includeTransient = flags.Bool("include-transient-bounced", false,
			"Retry rows with a transient bounce on file")
	)

	if err := flags.Parse(args); err != nil {
		return err
	}

	if !flags.Changed("start-id") || !flags.Changed("end-id") {
		return errors.New("both --start-id and --end-id are required")
	}

	if *startID < 1 || *endID < *startID {
		return fmt.Errorf("invalid id range [%d, %d]", *startID, *endID)
	}

	parsedProfile, err := mailing.ParseProfile(*profile)
	if err != nil {
		return err
	}

	summary, err := c.Controller.Run(ctx, delivery.Options{
		StartID:                 *startID,
		EndID:                   *endID,
		Profile:                 parsedProfile,
		CheckDNS:                !*skipDNS,
		IncludeTransientBounced: *includeTransient,
	})
	if err != nil {
		return err
	}

	event := log.Info().
		Str("run", summary.RunID).
		Int("processed", summary.Processed).
		Int("sent", summary.Sent).
		Int("failed", summary.Failed).
		Dur("elapsed", summary.Elapsed)

	for _, decision := range []suppression.Decision{
		suppression.DecisionSkipMissingAddress,
		suppression.DecisionSkipUnsubscribed,
		suppression.DecisionSkipBouncedPermanent,
		suppression.DecisionSkipBouncedTransient,
		suppression.DecisionSkipAlreadySent,
	} {
		if count := summary.Skipped[decision]; count > 0 {
			event = event.Int(string(decision), count)
		}
	}

	event.Msg("campaign run summary")

	if summary.Interrupted {
		log.Warn().Msg("run was interrupted, remaining rows are untouched")
	}

	return nil
}
