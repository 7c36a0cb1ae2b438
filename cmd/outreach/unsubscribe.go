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
	"github.com/lukasdietrich/outreach/internal/unsubscribe"
)

type unsubscribeCommand struct {
	Intake *unsubscribe.Intake
}

func (c *unsubscribeCommand) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: outreach unsubscribe FEED")
	}

	result, err := c.Intake.Apply(ctx, args[0])
	if err != nil {
		return err
	}

	log.Info().
		Int("applied", result.Applied).
		Int("unchanged", result.Unchanged).
		Int("unmatched", result.Unmatched).
		Int("malformed", result.Malformed).
		Msg("opt-out feed applied")

	return nil
}
