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

	"github.com/spf13/viper"

	"github.com/lukasdietrich/outreach/internal/bounce"
	"github.com/lukasdietrich/outreach/internal/dashboard"
	"github.com/lukasdietrich/outreach/internal/log"
)

type serveCommand struct {
	Server  *dashboard.Server
	Scanner *bounce.Scanner
}

// run serves the dashboard until interrupted. When a scan interval is
// configured, the mailbox is scanned in the background.
func (c *serveCommand) run(ctx context.Context, _ []string) error {
	if interval := viper.GetDuration("bounce.scan.interval"); interval > 0 {
		log.Info().
			Dur("interval", interval).
			Msg("starting periodic mailbox scan")

		go c.Scanner.RunPeriodic(ctx, interval)
	}

	return c.Server.Run(ctx)
}
