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

	"github.com/spf13/pflag"

	"github.com/lukasdietrich/outreach/internal/bounce"
	"github.com/lukasdietrich/outreach/internal/log"
)

type scanCommand struct {
	Scanner *bounce.Scanner
}

// run scans the mailbox once, or in a fixed interval until interrupted when
// --interval is given.
func (c *scanCommand) run(ctx context.Context, args []string) error {
	flags := pflag.NewFlagSet("scan", pflag.ContinueOnError)
	interval := flags.Duration("interval", 0,
		"Repeat the scan in this interval instead of scanning once")

	if err := flags.Parse(args); err != nil {
		return err
	}

	if *interval > 0 {
		log.Info().Dur("interval", *interval).Msg("scanning mailbox periodically")
		c.Scanner.RunPeriodic(ctx, *interval)
		return nil
	}

	report, err := c.Scanner.Scan(ctx)
	if err != nil {
		return err
	}

	log.Info().
		Int("notifications", report.TotalBounceEmails).
		Int("permanent", report.Summary.PermanentBounces).
		Int("transient", report.Summary.TemporaryBounces).
		Int("unknown", report.Summary.UnknownBounces).
		Msg("scan summary")

	return nil
}
