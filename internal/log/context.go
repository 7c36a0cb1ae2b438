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

package log

import (
	"context"

	"github.com/rs/zerolog"
)

type fieldRun struct{}
type fieldCompany struct{}
type fieldMail struct{}

// WithRun adds the campaign run identifier to the context.
func WithRun(ctx context.Context, run string) context.Context {
	return context.WithValue(ctx, fieldRun{}, run)
}

// WithCompany adds the roster company id to the context.
func WithCompany(ctx context.Context, company int64) context.Context {
	return context.WithValue(ctx, fieldCompany{}, company)
}

// WithMail adds the mailbox message id to the context.
func WithMail(ctx context.Context, mail string) context.Context {
	return context.WithValue(ctx, fieldMail{}, mail)
}

// appendContextFields adds defined fields in the context to the log event.
func appendContextFields(ctx context.Context, event *zerolog.Event) *zerolog.Event {
	if run, ok := ctx.Value(fieldRun{}).(string); ok {
		event.Str("run", run)
	}

	if company, ok := ctx.Value(fieldCompany{}).(int64); ok {
		event.Int64("company", company)
	}

	if mail, ok := ctx.Value(fieldMail{}).(string); ok {
		event.Str("mail", mail)
	}

	return event
}
