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

package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"io"

	"github.com/google/wire"
)

// WireSet is the provider set for the crypto package.
var WireSet = wire.NewSet(
	NewTokenGenerator,
)

// TokenGenerator is a service to generate opaque tracking tokens. One token is
// attached to every ledger row to make single attempts addressable.
type TokenGenerator interface {
	// GenerateToken generates a new 128-bit token in hex form.
	GenerateToken() (string, error)
}

// NewTokenGenerator creates a new token generator.
func NewTokenGenerator() TokenGenerator {
	return &randomTokenGenerator{random: rand.Reader}
}

type randomTokenGenerator struct {
	random io.Reader
}

func (r randomTokenGenerator) GenerateToken() (string, error) {
	const byteLength = 16

	b, err := r.readRandomBytes(byteLength)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

func (r randomTokenGenerator) readRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := io.ReadFull(r.random, b)
	return b, err
}
