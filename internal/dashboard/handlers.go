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

package dashboard

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lukasdietrich/outreach/internal/database"
	"github.com/lukasdietrich/outreach/internal/log"
	"github.com/lukasdietrich/outreach/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("could not encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// summaryView aggregates the roster state. Sent counts rows by their
// last_send_status column, not by ledger projection, so the summary is
// computed from the roster alone. Coverage is the share of successfully
// contacted companies among those still willing to be contacted.
type summaryView struct {
	TotalCompanies   int     `json:"total_companies"`
	Sent             int     `json:"sent"`
	Failed           int     `json:"failed"`
	Pending          int     `json:"pending"`
	Unsubscribed     int     `json:"unsubscribed"`
	MissingAddress   int     `json:"missing_address"`
	BouncedPermanent int     `json:"bounced_permanent"`
	BouncedTransient int     `json:"bounced_transient"`
	Coverage         float64 `json:"coverage"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	companies, err := s.findAllCompanies(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load roster")
		return
	}

	var view summaryView
	view.TotalCompanies = len(companies)

	for _, company := range companies {
		switch company.LastSendStatus {
		case models.SendSuccess:
			view.Sent++
		case models.SendFailed:
			view.Failed++
		default:
			view.Pending++
		}

		if company.UnsubscribeState == models.Unsubscribed {
			view.Unsubscribed++
		}

		if _, err := company.Recipient(); err != nil {
			view.MissingAddress++
		}

		switch company.BounceState {
		case models.BouncePermanent:
			view.BouncedPermanent++
		case models.BounceTransient:
			view.BouncedTransient++
		}
	}

	if reachable := view.TotalCompanies - view.Unsubscribed; reachable > 0 {
		view.Coverage = float64(view.Sent) / float64(reachable)
	}

	writeJSON(w, http.StatusOK, view)
}

func (s *Server) findAllCompanies(r *http.Request) ([]models.CompanyEntity, error) {
	ctx := r.Context()

	tx, err := s.database.Begin(ctx)
	if err != nil {
		return nil, err
	}

	defer tx.Rollback()

	companies, err := s.companyDao.FindAll(ctx, tx)
	if err != nil {
		return nil, err
	}

	return companies, tx.Commit()
}

// companyView is the json shape of one roster row.
type companyView struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Homepage         string `json:"homepage,omitempty"`
	ContactEmail     string `json:"contact_email,omitempty"`
	JobTitles        string `json:"job_titles"`
	BounceState      string `json:"bounce_state,omitempty"`
	BounceReason     string `json:"bounce_reason,omitempty"`
	UnsubscribeState string `json:"unsubscribe_state,omitempty"`
	LastSendStatus   string `json:"last_send_status,omitempty"`
	LastSendTime     string `json:"last_send_time,omitempty"`
	LastError        string `json:"last_error,omitempty"`
}

func newCompanyView(company *models.CompanyEntity) companyView {
	view := companyView{
		ID:               company.ID,
		Name:             company.Name,
		Homepage:         company.Homepage.String,
		ContactEmail:     company.ContactEmail.String,
		JobTitles:        company.JobTitles,
		BounceState:      string(company.BounceState),
		BounceReason:     company.BounceReason.String,
		UnsubscribeState: string(company.UnsubscribeState),
		LastSendStatus:   string(company.LastSendStatus),
		LastError:        company.LastError.String,
	}

	if company.LastSendTime.Valid {
		view.LastSendTime = time.Unix(company.LastSendTime.Int64, 0).Format(time.RFC3339)
	}

	return view
}

func (s *Server) handleCompany(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}

	ctx := r.Context()

	tx, err := s.database.Begin(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load company")
		return
	}

	defer tx.Rollback()

	company, err := s.companyDao.FindByID(ctx, tx, id)
	if err != nil {
		if database.IsErrNoRows(err) {
			writeError(w, http.StatusNotFound, "no such company")
			return
		}

		writeError(w, http.StatusInternalServerError, "could not load company")
		return
	}

	writeJSON(w, http.StatusOK, newCompanyView(&company))
}

func (s *Server) handleRuns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}

		limit = parsed
	}

	records, err := s.journal.Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not read journal")
		return
	}

	writeJSON(w, http.StatusOK, records)
}
