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
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/lukasdietrich/outreach/internal/models"
)

func init() {
	viper.SetDefault("storage.bounce.reportfolder", "data/bounce_reports")
}

// A Detail is one applied or attempted notification in a scan report.
type Detail struct {
	MessageID        string             `json:"message_id"`
	Subject          string             `json:"subject"`
	BouncedAddresses []string           `json:"bounced_addresses"`
	BounceType       models.BounceState `json:"bounce_type"`
	Reason           string             `json:"reason,omitempty"`
	CompanyID        int64              `json:"company_id,omitempty"`
	Matched          bool               `json:"matched"`
	ProcessedDate    string             `json:"processed_date"`
}

// A Report summarizes one mailbox scan.
type Report struct {
	ProcessingDate    string   `json:"processing_date"`
	TotalBounceEmails int      `json:"total_bounce_emails"`
	BounceDetails     []Detail `json:"bounce_details"`
	Summary           Summary  `json:"summary"`
}

// Summary are the aggregate counters of a scan. Notifications that could
// not be parsed at all count as unknown.
type Summary struct {
	PermanentBounces int `json:"permanent_bounces"`
	TemporaryBounces int `json:"temporary_bounces"`
	UnknownBounces   int `json:"unknown_bounces"`
}

// ReportWriter persists one timestamped report file per scan.
type ReportWriter struct {
	fs     afero.Fs
	folder string
	now    func() time.Time
}

// NewReportWriter creates the report folder if necessary.
func NewReportWriter() (*ReportWriter, error) {
	folder := viper.GetString("storage.bounce.reportfolder")

	fs := afero.NewOsFs()
	if err := fs.MkdirAll(folder, 0700); err != nil {
		return nil, fmt.Errorf("bounce: could not create report folder: %w", err)
	}

	return newReportWriterFs(fs, folder), nil
}

func newReportWriterFs(fs afero.Fs, folder string) *ReportWriter {
	return &ReportWriter{
		fs:     fs,
		folder: folder,
		now:    time.Now,
	}
}

// Write stores the report as "bounce_report_<timestamp>.json" and returns the
// filename.
func (w *ReportWriter) Write(report *Report) (string, error) {
	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}

	filename := filepath.Join(w.folder,
		fmt.Sprintf("bounce_report_%s.json", w.now().Format("20060102_150405")))

	if err := afero.WriteFile(w.fs, filename, raw, 0600); err != nil {
		return "", fmt.Errorf("bounce: could not write report: %w", err)
	}

	return filename, nil
}
