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

	"github.com/lukasdietrich/outreach/internal/log"
	"github.com/lukasdietrich/outreach/internal/roster"
)

type rosterCommand struct {
	Importer *roster.Importer
	Exporter *roster.Exporter
}

var errRosterUsage = errors.New("usage: outreach roster (import|export) FILE")

func (c *rosterCommand) run(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errRosterUsage
	}

	filename := args[1]

	switch args[0] {
	case "import":
		result, err := c.Importer.Import(ctx, filename)
		if err != nil {
			return err
		}

		log.Info().
			Int("imported", result.Imported).
			Int("skipped", result.Skipped).
			Msg("roster imported")

		return nil

	case "export":
		if err := c.Exporter.Export(ctx, filename); err != nil {
			return err
		}

		log.Info().
			Str("filename", filename).
			Msg("roster exported")

		return nil

	default:
		return errRosterUsage
	}
}
