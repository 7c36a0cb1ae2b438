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

// Package suppression decides whether a roster row is eligible for sending.
// The decision is a pure function over the row and a set of projections, all
// mutable state is passed in by the caller.
package suppression

import (
	"github.com/lukasdietrich/outreach/internal/models"
)

// Decision is the outcome of the suppression check for a single roster row.
type Decision string

const (
	// DecisionSend means the row is eligible for a dispatch attempt.
	DecisionSend Decision = "send"
	// DecisionSkipMissingAddress means the contact email is absent or fails
	// the syntactic check.
	DecisionSkipMissingAddress Decision = "skip_missing_address"
	// DecisionSkipUnsubscribed means the company asked to not be contacted.
	DecisionSkipUnsubscribed Decision = "skip_unsubscribed"
	// DecisionSkipBouncedPermanent means a permanent bounce is on file.
	DecisionSkipBouncedPermanent Decision = "skip_bounced_permanent"
	// DecisionSkipBouncedTransient means a transient bounce is on file and the
	// run does not include transient-bounced rows.
	DecisionSkipBouncedTransient Decision = "skip_bounced_transient"
	// DecisionSkipAlreadySent means a successful ledger row already exists.
	DecisionSkipAlreadySent Decision = "skip_already_sent"
)

// IsSkip reports whether d is any of the skip decisions.
func (d Decision) IsSkip() bool {
	return d != DecisionSend
}

// IDSet is a set of company ids.
type IDSet map[int64]struct{}

// NewIDSet creates an IDSet from a list of ids.
func NewIDSet(ids ...int64) IDSet {
	set := make(IDSet, len(ids))

	for _, id := range ids {
		set[id] = struct{}{}
	}

	return set
}

// Contains reports whether id is part of the set.
func (s IDSet) Contains(id int64) bool {
	_, ok := s[id]
	return ok
}

// Projections is the derived campaign state the policy consults in addition
// to the roster row itself.
type Projections struct {
	// AlreadySent is the set of company ids with at least one successful
	// ledger row.
	AlreadySent IDSet
}

// Options are the operator overrides for a single run.
type Options struct {
	// IncludeTransientBounced widens the run to rows with a transient bounce
	// on file. Permanent bounces are never included.
	IncludeTransientBounced bool
}

// Decide checks a roster row against the suppression rules. The order of the
// checks is fixed: address, unsubscribe, bounce, already-sent.
func Decide(row *models.CompanyEntity, projections Projections, options Options) Decision {
	if _, err := row.Recipient(); err != nil {
		return DecisionSkipMissingAddress
	}

	if row.UnsubscribeState == models.Unsubscribed {
		return DecisionSkipUnsubscribed
	}

	switch row.BounceState {
	case models.BouncePermanent:
		return DecisionSkipBouncedPermanent

	case models.BounceTransient:
		if !options.IncludeTransientBounced {
			return DecisionSkipBouncedTransient
		}
	}

	if projections.AlreadySent.Contains(row.ID) {
		return DecisionSkipAlreadySent
	}

	return DecisionSend
}
