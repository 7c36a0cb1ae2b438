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

package ledger

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukasdietrich/outreach/internal/models"
)

func newTestLedger() *Ledger {
	return newLedgerFs(afero.NewMemMapFs(), "ledger.csv")
}

func testEntry(companyID int64, outcome models.SendOutcome) *models.LedgerEntry {
	return &models.LedgerEntry{
		CompanyID:      companyID,
		CompanyName:    "Acme K.K.",
		RecipientEmail: "hr@acme.example",
		JobTitle:       "Engineer",
		SentAt:         time.Date(2024, 4, 2, 12, 30, 0, 0, time.Local),
		Outcome:        outcome,
		TrackingToken:  "74657374746f6b656e74657374746f6b",
		Subject:        "Engineer position",
	}
}

func TestAppendCreatesHeaderAndBom(t *testing.T) {
	ledger := newTestLedger()

	require.NoError(t, ledger.Append(testEntry(42, models.OutcomeSuccess)))

	raw, err := afero.ReadFile(ledger.fs, "ledger.csv")
	require.NoError(t, err)

	content := string(raw)
	assert.True(t, strings.HasPrefix(content, "\ufeff"))
	assert.Contains(t, content, "company_id,company_name,recipient_email")
	assert.Contains(t, content, "42,Acme K.K.,hr@acme.example")
}

func TestAppendReadRoundTrip(t *testing.T) {
	ledger := newTestLedger()

	require.NoError(t, ledger.Append(testEntry(1, models.OutcomeSuccess)))

	failed := testEntry(2, models.OutcomeFailed)
	failed.ErrorMessage = "550 5.1.1 user unknown"
	require.NoError(t, ledger.Append(failed))

	entrySlice, err := ledger.ReadAll()
	require.NoError(t, err)
	require.Len(t, entrySlice, 2)

	assert.EqualValues(t, 1, entrySlice[0].CompanyID)
	assert.Equal(t, models.OutcomeSuccess, entrySlice[0].Outcome)
	assert.Empty(t, entrySlice[0].ErrorMessage)

	assert.EqualValues(t, 2, entrySlice[1].CompanyID)
	assert.Equal(t, models.OutcomeFailed, entrySlice[1].Outcome)
	assert.Equal(t, "550 5.1.1 user unknown", entrySlice[1].ErrorMessage)

	assert.Equal(t, testEntry(1, models.OutcomeSuccess).SentAt, entrySlice[0].SentAt)
}

func TestReadAllMissingFile(t *testing.T) {
	ledger := newTestLedger()

	entrySlice, err := ledger.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, entrySlice)
}

func TestAlreadySentIDs(t *testing.T) {
	ledger := newTestLedger()

	require.NoError(t, ledger.Append(testEntry(1, models.OutcomeSuccess)))
	require.NoError(t, ledger.Append(testEntry(2, models.OutcomeFailed)))
	require.NoError(t, ledger.Append(testEntry(3, models.OutcomeSuccess)))
	// duplicate attempts stay a single set entry
	require.NoError(t, ledger.Append(testEntry(3, models.OutcomeSuccess)))

	set, err := ledger.AlreadySentIDs()
	require.NoError(t, err)

	assert.Len(t, set, 2)
	assert.True(t, set.Contains(1))
	assert.False(t, set.Contains(2))
	assert.True(t, set.Contains(3))
}
