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
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessedStoreRoundTrip(t *testing.T) {
	store := newProcessedStoreFs(afero.NewMemMapFs(), "processed.json")
	store.now = func() time.Time {
		return time.Date(2024, time.April, 1, 12, 0, 0, 0, time.UTC)
	}

	set, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, set)

	require.NoError(t, store.Add("<a@mta.example>", "<b@mta.example>"))
	require.NoError(t, store.Add("<c@mta.example>"))

	set, err = store.Load()
	require.NoError(t, err)

	assert.Len(t, set, 3)
	assert.True(t, set["<b@mta.example>"])
}

func TestProcessedStoreFileFormat(t *testing.T) {
	fs := afero.NewMemMapFs()

	store := newProcessedStoreFs(fs, "processed.json")
	store.now = func() time.Time {
		return time.Date(2024, time.April, 1, 12, 0, 0, 0, time.UTC)
	}

	require.NoError(t, store.Add("<a@mta.example>"))

	content, err := afero.ReadFile(fs, "processed.json")
	require.NoError(t, err)

	assert.Contains(t, string(content), `"last_updated": "2024-04-01T12:00:00Z"`)
	assert.Contains(t, string(content), `"total_processed": 1`)
	assert.Contains(t, string(content), `"processed_message_ids"`)
}

func TestProcessedStoreMalformedFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "processed.json", []byte("not json"), 0600))

	store := newProcessedStoreFs(fs, "processed.json")

	_, err := store.Load()
	assert.Error(t, err)
}
