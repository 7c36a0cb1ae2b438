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

// Package mailing renders the per-company messages from the liquid template
// set and composes them into transmittable mime messages.
package mailing

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/wire"
	"github.com/osteele/liquid"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// WireSet is the provider set for the mailing package.
var WireSet = wire.NewSet(
	NewRenderer,
	NewComposer,
)

func init() {
	viper.SetDefault("mailing.templates.html", "templates/mail.html")
	viper.SetDefault("mailing.templates.text", "templates/mail.txt")
	viper.SetDefault("mailing.subject", "{{ job_position }} opening at {{ company_name }}")
	viper.SetDefault("mailing.tracking.pixelurl", "")
}

// Placeholder names of the substitution contract. Both must be present in the
// html and text templates and both must resolve on every render.
const (
	placeholderCompanyName = "company_name"
	placeholderJobPosition = "job_position"
)

var (
	// ErrPlaceholderMissing is returned at load time when a template does not
	// reference the mandatory placeholders.
	ErrPlaceholderMissing = errors.New("mailing: mandatory placeholder missing")

	// ErrPlaceholderUnresolved is returned at render time when a placeholder
	// has no binding. The message must not be transmitted.
	ErrPlaceholderUnresolved = errors.New("mailing: unresolved placeholder")

	// placeholderPattern finds {{ variable }} references including filters.
	placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*(?:\|[^}]*)?\}\}`)
)

// TemplateSet is the loaded template triple of one campaign.
type TemplateSet struct {
	HTML    string
	Text    string
	Subject string
}

// LoadTemplateSet reads the html and text templates from the configured files
// and the subject template from the configuration itself. Missing files and
// templates without the mandatory placeholders are start-up errors.
func LoadTemplateSet(fs afero.Fs) (TemplateSet, error) {
	var set TemplateSet

	html, err := afero.ReadFile(fs, viper.GetString("mailing.templates.html"))
	if err != nil {
		return set, fmt.Errorf("mailing: could not read html template: %w", err)
	}

	text, err := afero.ReadFile(fs, viper.GetString("mailing.templates.text"))
	if err != nil {
		return set, fmt.Errorf("mailing: could not read text template: %w", err)
	}

	set = TemplateSet{
		HTML:    string(html),
		Text:    string(text),
		Subject: viper.GetString("mailing.subject"),
	}

	for _, template := range []string{set.HTML, set.Text} {
		if err := requirePlaceholders(template); err != nil {
			return set, err
		}
	}

	return set, nil
}

func requirePlaceholders(template string) error {
	names := placeholderNames(template)

	for _, required := range []string{placeholderCompanyName, placeholderJobPosition} {
		if !names[required] {
			return fmt.Errorf("%w: %q", ErrPlaceholderMissing, required)
		}
	}

	return nil
}

func placeholderNames(template string) map[string]bool {
	names := make(map[string]bool)

	for _, match := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		names[strings.TrimSpace(match[1])] = true
	}

	return names
}

// renderStrict renders a single template and fails on any placeholder without
// a binding. Liquid substitutes unknown variables with an empty string, so
// the check runs against the template before rendering.
func renderStrict(engine *liquid.Engine, template string, bindings liquid.Bindings) (string, error) {
	for name := range placeholderNames(template) {
		root, _, _ := strings.Cut(name, ".")

		if _, ok := bindings[root]; !ok {
			return "", fmt.Errorf("%w: %q", ErrPlaceholderUnresolved, name)
		}
	}

	out, err := engine.ParseAndRenderString(template, bindings)
	if err != nil {
		return "", fmt.Errorf("mailing: render: %w", err)
	}

	if placeholderPattern.MatchString(out) {
		return "", fmt.Errorf("%w: output still contains placeholders", ErrPlaceholderUnresolved)
	}

	return out, nil
}
