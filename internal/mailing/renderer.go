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

package mailing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/osteele/liquid"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/lukasdietrich/outreach/internal/models"
)

func init() {
	viper.SetDefault("mailing.sender.address", "")
	viper.SetDefault("mailing.sender.name", "")
	viper.SetDefault("mailing.replyto", "")
}

// Profile selects the header and body shape of composed messages.
type Profile string

const (
	// ProfileAntiSpam is the default. It emits only the minimal header set
	// and no automation markers.
	ProfileAntiSpam = Profile("anti-spam")
	// ProfileTracking additionally embeds a single tracking pixel into the
	// html part.
	ProfileTracking = Profile("tracking")
)

// ErrUnknownProfile is returned for profile names other than "anti-spam" and
// "tracking".
var ErrUnknownProfile = errors.New("mailing: unknown profile")

// ParseProfile validates a profile name from the command line.
func ParseProfile(name string) (Profile, error) {
	switch profile := Profile(name); profile {
	case ProfileAntiSpam, ProfileTracking:
		return profile, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
}

// A RenderedMail is a fully substituted message ready for composition.
type RenderedMail struct {
	To      models.Address
	Subject string
	HTML    string
	Text    string
}

// Renderer produces per-company messages from the loaded template set.
type Renderer struct {
	engine    *liquid.Engine
	templates TemplateSet
	pixelURL  string
}

// NewRenderer loads the template set and fails fast on missing files or
// missing placeholders.
func NewRenderer(fs afero.Fs) (*Renderer, error) {
	templates, err := LoadTemplateSet(fs)
	if err != nil {
		return nil, err
	}

	return &Renderer{
		engine:    liquid.NewEngine(),
		templates: templates,
		pixelURL:  viper.GetString("mailing.tracking.pixelurl"),
	}, nil
}

// Render substitutes the placeholders of one company into all three
// templates. Any placeholder without a binding aborts the render. The token
// correlates the tracking pixel, if any, with the ledger entry of the row.
func (r *Renderer) Render(company *models.CompanyEntity, profile Profile, token string) (*RenderedMail, error) {
	recipient, err := company.Recipient()
	if err != nil {
		return nil, err
	}

	bindings := liquid.Bindings{
		placeholderCompanyName: company.Name,
		placeholderJobPosition: company.PrimaryJobTitle(),
	}

	subject, err := renderStrict(r.engine, r.templates.Subject, bindings)
	if err != nil {
		return nil, err
	}

	html, err := renderStrict(r.engine, r.templates.HTML, bindings)
	if err != nil {
		return nil, err
	}

	text, err := renderStrict(r.engine, r.templates.Text, bindings)
	if err != nil {
		return nil, err
	}

	if profile == ProfileTracking && r.pixelURL != "" {
		html, err = r.embedPixel(html, token)
		if err != nil {
			return nil, err
		}
	}

	return &RenderedMail{
		To:      recipient,
		Subject: subject,
		HTML:    html,
		Text:    text,
	}, nil
}

// embedPixel appends exactly one invisible image to the html part. The pixel
// url may reference a {{ token }} placeholder for correlation.
func (r *Renderer) embedPixel(html, token string) (string, error) {
	url, err := r.engine.ParseAndRenderString(r.pixelURL, liquid.Bindings{"token": token})
	if err != nil {
		return "", fmt.Errorf("mailing: pixel url: %w", err)
	}

	pixel := fmt.Sprintf(`<img src=%q width="1" height="1" alt="">`, url)

	if index := strings.LastIndex(html, "</body>"); index >= 0 {
		return html[:index] + pixel + html[index:], nil
	}

	return html + pixel, nil
}
