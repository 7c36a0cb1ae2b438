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

// Package dashboard serves a read-only http api over the campaign state.
package dashboard

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/wire"
	"github.com/spf13/viper"

	"github.com/lukasdietrich/outreach/internal/database"
	"github.com/lukasdietrich/outreach/internal/delivery"
	"github.com/lukasdietrich/outreach/internal/journal"
	"github.com/lukasdietrich/outreach/internal/log"
)

// WireSet is the provider set for the dashboard package.
var WireSet = wire.NewSet(
	NewServer,
)

func init() {
	viper.SetDefault("dashboard.address", "localhost:8080")
	viper.SetDefault("dashboard.cors.origins", []string{"*"})
}

// Server exposes the roster, the run progress and the send history. All
// endpoints are read-only.
type Server struct {
	database   database.Conn
	companyDao database.CompanyDao
	journal    *journal.Journal
	registry   *delivery.Registry
	address    string
}

// NewServer wires a dashboard server from its collaborators.
func NewServer(
	conn database.Conn,
	companyDao database.CompanyDao,
	sendJournal *journal.Journal,
	registry *delivery.Registry,
) *Server {
	return &Server{
		database:   conn,
		companyDao: companyDao,
		journal:    sendJournal,
		registry:   registry,
		address:    viper.GetString("dashboard.address"),
	}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: viper.GetStringSlice("dashboard.cors.origins"),
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	router.Get("/health", s.handleHealth)

	router.Route("/api", func(api chi.Router) {
		api.Get("/summary", s.handleSummary)
		api.Get("/companies/{id}", s.handleCompany)
		api.Get("/runs", s.handleRuns)
		api.Get("/history", s.handleHistory)
	})

	return router
}

// Run serves the api until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: time.Second * 10,
	}

	errc := make(chan error, 1)

	go func() {
		log.InfoContext(ctx).
			Str("address", s.address).
			Msg("dashboard listening")

		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}

		err := <-errc
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	}
}
