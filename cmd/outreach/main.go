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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lukasdietrich/outreach/internal/log"
)

const usageText = `
Usage:
  outreach [OPTIONS] COMMAND [COMMAND OPTIONS]

  Recruiting outreach campaign engine.

Version:
  %s

Commands:
  run          Process the roster and dispatch messages
  scan         Scan the mailbox for delivery-status notifications
  serve        Serve the read-only dashboard api
  roster       Import or export the roster as csv
  unsubscribe  Apply an opt-out feed to the roster

Options:
%s
`

// Version is set at compile-time.
var Version string

func init() {
	viper.SetDefault("log.level", "info")
}

func main() {
	var configFilename string

	flags := pflag.NewFlagSet("outreach", pflag.ContinueOnError)
	flags.StringVarP(&configFilename, "config", "c", "", "Path to a configuration file")
	flags.Usage = printUsage(flags)

	// stop at the command name, its own flags are parsed by the command
	flags.SetInterspersed(false)

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}

		log.Fatal().Err(err).Msg("could not parse flags")
	}

	switch commandName := flags.Arg(0); commandName {
	case "run", "scan", "serve", "roster", "unsubscribe":
		setupConfig(configFilename)
		setupLogger()
		printConfig()
		dispatchCommand(commandName, flags.Args()[1:])
	default:
		flags.Usage()
	}
}

type command interface {
	run(ctx context.Context, args []string) error
}

func dispatchCommand(commandName string, args []string) {
	var (
		cmd command
		err error
	)

	switch commandName {
	case "run":
		cmd, err = newRunCommand()
	case "scan":
		cmd, err = newScanCommand()
	case "serve":
		cmd, err = newServeCommand()
	case "roster":
		cmd, err = newRosterCommand()
	case "unsubscribe":
		cmd, err = newUnsubscribeCommand()
	}

	if err != nil {
		log.Fatal().Err(err).Msg("could not initialize the application")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.run(ctx, args); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func printUsage(flags *pflag.FlagSet) func() {
	return func() {
		fmt.Fprintf(os.Stderr, usageText,
			Version,
			flags.FlagUsages())
	}
}

func setupLogger() {
	level, err := zerolog.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		log.Fatal().Err(err).Msg("unknown log level")
	}

	log.Logger = log.Logger.Level(level)
	log.Info().Stringer("level", level).Msg("setting log level")
}

func setupConfig(filename string) {
	viper.SetTypeByDefaultValue(true)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetEnvPrefix("OUTREACH")

	if filename != "" {
		readConfig(filename)
	} else {
		log.Info().Msg("no config file provided. using environment only")
	}
}

func readConfig(filename string) {
	log.Info().Str("filename", filename).Msg("loading configuration")

	known := make(map[string]bool)
	for _, key := range viper.AllKeys() {
		known[key] = true
	}

	viper.SetConfigFile(filename)

	if err := viper.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			log.Warn().Err(err).Msg("configuration file missing")
		} else {
			log.Fatal().Err(err).Msg("could not load configuration")
		}

		return
	}

	if key := unknownConfigKey(known, filename); key != "" {
		log.Fatal().Str("key", key).Msg("unknown configuration key")
	}
}

// unknownConfigKey returns the first configured key without a registered
// default. A typo in a key name must not silently fall back to the default
// value.
func unknownConfigKey(known map[string]bool, filename string) string {
	file := viper.New()
	file.SetConfigFile(filename)

	if err := file.ReadInConfig(); err != nil {
		return ""
	}

	keys := file.AllKeys()
	sort.Strings(keys)

	for _, key := range keys {
		if !known[key] {
			return key
		}
	}

	return ""
}

func printConfig() {
	keys := viper.AllKeys()
	sort.Strings(keys)

	for _, key := range keys {
		if strings.Contains(key, "password") {
			continue
		}

		v, _ := json.Marshal(viper.Get(key))
		log.Debug().Str("key", key).RawJSON("value", v).Msg("config")
	}
}
