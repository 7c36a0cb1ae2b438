//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/spf13/afero"

	"github.com/lukasdietrich/outreach/internal/bounce"
	"github.com/lukasdietrich/outreach/internal/crypto"
	"github.com/lukasdietrich/outreach/internal/dashboard"
	"github.com/lukasdietrich/outreach/internal/database"
	"github.com/lukasdietrich/outreach/internal/delivery"
	"github.com/lukasdietrich/outreach/internal/journal"
	"github.com/lukasdietrich/outreach/internal/ledger"
	"github.com/lukasdietrich/outreach/internal/mailing"
	"github.com/lukasdietrich/outreach/internal/roster"
	"github.com/lukasdietrich/outreach/internal/unsubscribe"
)

func newFilesystem() afero.Fs {
	return afero.NewOsFs()
}

var wireSet = wire.NewSet(
	wire.Struct(new(runCommand), "*"),
	wire.Struct(new(scanCommand), "*"),
	wire.Struct(new(serveCommand), "*"),
	wire.Struct(new(rosterCommand), "*"),
	wire.Struct(new(unsubscribeCommand), "*"),

	newFilesystem,
	database.WireSet,
	crypto.WireSet,
	ledger.WireSet,
	journal.WireSet,
	roster.WireSet,
	mailing.WireSet,
	delivery.WireSet,
	bounce.WireSet,
	unsubscribe.WireSet,
	dashboard.WireSet,
)

func newRunCommand() (*runCommand, error) {
	panic(wire.Build(wireSet))
}

func newScanCommand() (*scanCommand, error) {
	panic(wire.Build(wireSet))
}

func newServeCommand() (*serveCommand, error) {
	panic(wire.Build(wireSet))
}

func newRosterCommand() (*rosterCommand, error) {
	panic(wire.Build(wireSet))
}

func newUnsubscribeCommand() (*unsubscribeCommand, error) {
	panic(wire.Build(wireSet))
}
