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

package models

import (
	"database/sql/driver"
	"errors"
	"strings"
)

var (
	// ErrInvalidAddressFormat is used for addresses of zero length, without an
	// "@" sign or without a dot in the domain part.
	ErrInvalidAddressFormat = errors.New("address: invalid format")

	// ErrPathTooLong is used for addresses, that are too long or contain a path
	// that is too long according to RFC#5321.
	ErrPathTooLong = errors.New("address: path too long")

	// ZeroAddress is an invalid, zero value Address.
	ZeroAddress Address
)

// Address is a string of the form "local-part@domain". The roster only trusts
// the relay for real verification, so the check here is purely syntactic: an
// "@" sign and at least one dot right of it.
type Address struct {
	raw string
	at  int
}

// Parse splits an address at the "@" sign and checks for size limits and a
// dotted domain.
func Parse(raw string) (Address, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) == 0 {
		return ZeroAddress, ErrInvalidAddressFormat
	}

	at := strings.LastIndex(raw, "@")
	if at < 1 {
		return ZeroAddress, ErrInvalidAddressFormat
	}

	// see RFC#5321 4.5.3.1
	if at > 64 || len(raw)-at > 256 || len(raw) > 256 {
		return ZeroAddress, ErrPathTooLong
	}

	if !strings.Contains(raw[at+1:], ".") {
		return ZeroAddress, ErrInvalidAddressFormat
	}

	return Address{raw, at}, nil
}

// Normalized returns a copy of a with a lowercased, trimmed raw form. Bounce
// correlation compares normalized addresses.
func (a Address) Normalized() Address {
	raw := strings.ToLower(strings.TrimSpace(a.raw))

	return Address{
		raw: raw,
		at:  strings.LastIndex(raw, "@"),
	}
}

// String returns the raw address provided to Parse.
func (a Address) String() string {
	return a.raw
}

// LocalPart returns the part left of the "@" sign (exclusive).
func (a Address) LocalPart() string {
	return a.raw[:a.at]
}

// Domain returns the part right of the "@" sign (exclusive).
func (a Address) Domain() string {
	return a.raw[a.at+1:]
}

// Scan implements the sql.Scanner interface.
func (a *Address) Scan(src interface{}) error {
	s, err := driver.String.ConvertValue(src)
	if err != nil {
		return err
	}

	v, err := Parse(s.(string))
	if err != nil {
		return err
	}

	*a = v
	return nil
}

// Value implements the driver.Valuer interface.
func (a Address) Value() (driver.Value, error) {
	return a.raw, nil
}
