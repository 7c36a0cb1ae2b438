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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

func init() {
	viper.SetDefault("storage.bounce.processedfile", "data/processed_bounces.json")
}

// processedFile is the on-disk shape of the processed set.
type processedFile struct {
	LastUpdated         string   `json:"last_updated"`
	TotalProcessed      int      `json:"total_processed"`
	ProcessedMessageIDs []string `json:"processed_message_ids"`
}

// ProcessedStore remembers the message ids of notifications that were applied
// to the roster. Scans consult it so a notification is never applied twice.
type ProcessedStore struct {
	fs       afero.Fs
	filename string
	mutex    sync.Mutex
	now      func() time.Time
}

// NewProcessedStore creates the store at the configured path.
func NewProcessedStore() (*ProcessedStore, error) {
	filename := viper.GetString("storage.bounce.processedfile")

	fs := afero.NewOsFs()
	if err := fs.MkdirAll(filepath.Dir(filename), 0700); err != nil {
		return nil, fmt.Errorf("bounce: could not create data folder: %w", err)
	}

	return newProcessedStoreFs(fs, filename), nil
}

func newProcessedStoreFs(fs afero.Fs, filename string) *ProcessedStore {
	return &ProcessedStore{
		fs:       fs,
		filename: filename,
		now:      time.Now,
	}
}

// Load returns the set of already applied message ids. A missing file is an
// empty set.
func (s *ProcessedStore) Load() (map[string]bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	data, err := s.readLocked()
	if err != nil {
		return nil, err
	}

	set := make(map[string]bool, len(data.ProcessedMessageIDs))
	for _, id := range data.ProcessedMessageIDs {
		set[id] = true
	}

	return set, nil
}

// Add appends message ids and rewrites the file atomically.
func (s *ProcessedStore) Add(messageIDs ...string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	data, err := s.readLocked()
	if err != nil {
		return err
	}

	data.ProcessedMessageIDs = append(data.ProcessedMessageIDs, messageIDs...)
	data.TotalProcessed = len(data.ProcessedMessageIDs)
	data.LastUpdated = s.now().Format(time.RFC3339)

	return s.writeLocked(data)
}

func (s *ProcessedStore) readLocked() (processedFile, error) {
	var data processedFile

	raw, err := afero.ReadFile(s.fs, s.filename)
	if err != nil {
		if os.IsNotExist(err) {
			return data, nil
		}

		return data, fmt.Errorf("bounce: could not read processed set: %w", err)
	}

	if err := json.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("bounce: malformed processed set: %w", err)
	}

	return data, nil
}

func (s *ProcessedStore) writeLocked(data processedFile) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	temp := s.filename + ".tmp"

	if err := afero.WriteFile(s.fs, temp, raw, 0600); err != nil {
		return fmt.Errorf("bounce: could not write processed set: %w", err)
	}

	if err := s.fs.Rename(temp, s.filename); err != nil {
		// afero.MemMapFs refuses to replace an existing file on rename
		if removeErr := s.fs.Remove(s.filename); removeErr == nil {
			err = s.fs.Rename(temp, s.filename)
		}

		if err != nil {
			return fmt.Errorf("bounce: could not replace processed set: %w", err)
		}
	}

	return nil
}
