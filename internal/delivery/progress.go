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

package delivery

import (
	"sort"
	"sync"
	"time"
)

// A ProgressEvent is the state of a run after one processed row.
type ProgressEvent struct {
	RunID          string    `json:"run_id"`
	StartedAt      time.Time `json:"started_at"`
	Processed      int       `json:"processed"`
	Total          int       `json:"total"`
	LastID         int64     `json:"last_id"`
	LastOutcome    string    `json:"last_outcome"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	EtaSeconds     float64   `json:"eta_seconds"`
	Done           bool      `json:"done"`
}

// eta extrapolates the remaining duration from the average time per row.
func (e ProgressEvent) eta() float64 {
	if e.Processed == 0 || e.Total <= e.Processed {
		return 0
	}

	perRow := e.ElapsedSeconds / float64(e.Processed)
	return perRow * float64(e.Total-e.Processed)
}

// Registry keeps the latest progress event of every run of this process. The
// dashboard reads it concurrently to the run itself.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]ProgressEvent
}

// NewRegistry creates an empty progress registry.
func NewRegistry() *Registry {
	return &Registry{
		runs: make(map[string]ProgressEvent),
	}
}

// Update replaces the event of the run the event belongs to.
func (r *Registry) Update(event ProgressEvent) {
	event.EtaSeconds = event.eta()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs[event.RunID] = event
}

// List returns the latest event of every run, newest first.
func (r *Registry) List() []ProgressEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := make([]ProgressEvent, 0, len(r.runs))
	for _, event := range r.runs {
		events = append(events, event)
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].StartedAt.After(events[j].StartedAt)
	})

	return events
}
