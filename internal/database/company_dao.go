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

package database

import (
	"context"

	"github.com/lukasdietrich/outreach/internal/models"
)

// CompanyDao is a data access object for all roster related queries.
//
// The send, bounce and unsubscribe columns are owned by different actors
// (controller, bounce scanner and unsubscribe intake). Each actor only ever
// touches its own column group, which is why the updates are split instead of
// writing the whole row.
type CompanyDao interface {
	// Insert inserts a new company with an explicit id.
	Insert(context.Context, Queryer, *models.CompanyEntity) error
	// FindByID returns a single company by id.
	FindByID(context.Context, Queryer, int64) (models.CompanyEntity, error)
	// FindRange returns all companies with start <= id <= end in ascending id order.
	FindRange(context.Context, Queryer, int64, int64) ([]models.CompanyEntity, error)
	// FindAll returns the whole roster in ascending id order.
	FindAll(context.Context, Queryer) ([]models.CompanyEntity, error)
	// FindByContactEmail returns all companies whose contact email matches
	// case-insensitively after trimming.
	FindByContactEmail(context.Context, Queryer, string) ([]models.CompanyEntity, error)
	// FindByEmailOrName returns all companies matching either the contact
	// email or the company name, case-insensitively.
	FindByEmailOrName(context.Context, Queryer, string, string) ([]models.CompanyEntity, error)
	// UpdateSendColumns writes last_send_status, last_send_time and last_error.
	UpdateSendColumns(context.Context, Queryer, *models.CompanyEntity) error
	// UpdateBounceColumns writes bounce_state, bounce_time, bounce_reason and
	// last_bounce_type.
	UpdateBounceColumns(context.Context, Queryer, *models.CompanyEntity) error
	// UpdateUnsubscribeColumns writes unsubscribe_state, unsubscribe_time and
	// unsubscribe_reason.
	UpdateUnsubscribeColumns(context.Context, Queryer, *models.CompanyEntity) error
	// DeleteAll clears the roster. Used by the import tool before a full reload.
	DeleteAll(context.Context, Queryer) error
}

// companyDao is the sqlite implementation of CompanyDao.
type companyDao struct{}

// NewCompanyDao creates a new CompanyDao.
func NewCompanyDao() CompanyDao {
	return companyDao{}
}

func (companyDao) Insert(ctx context.Context, q Queryer, company *models.CompanyEntity) error {
	const query = `
		insert into "companies" (
			"id" ,
			"name" ,
			"homepage" ,
			"contact_email" ,
			"secondary_email" ,
			"job_titles" ,
			"bounce_state" ,
			"bounce_time" ,
			"bounce_reason" ,
			"unsubscribe_state" ,
			"unsubscribe_time" ,
			"unsubscribe_reason" ,
			"last_send_status" ,
			"last_send_time" ,
			"last_error" ,
			"last_bounce_type"
		) values (
			:id ,
			:name ,
			:homepage ,
			:contact_email ,
			:secondary_email ,
			:job_titles ,
			:bounce_state ,
			:bounce_time ,
			:bounce_reason ,
			:unsubscribe_state ,
			:unsubscribe_time ,
			:unsubscribe_reason ,
			:last_send_status ,
			:last_send_time ,
			:last_error ,
			:last_bounce_type
		) ;
	`

	result, err := execNamed(ctx, q, query, company)
	if err != nil {
		return err
	}

	return ensureRowsAffected(result)
}

func (companyDao) FindByID(ctx context.Context, q Queryer, id int64) (models.CompanyEntity, error) {
	const query = `
		select * from "companies"
		where "id" = $1 ;
	`

	var company models.CompanyEntity
	err := selectOne(ctx, q, &company, query, id)
	return company, err
}

func (companyDao) FindRange(
	ctx context.Context,
	q Queryer,
	start, end int64,
) ([]models.CompanyEntity, error) {
	const query = `
		select * from "companies"
		where "id" between $1 and $2
		order by "id" asc ;
	`

	var companySlice []models.CompanyEntity

	if err := selectSlice(ctx, q, &companySlice, query, start, end); err != nil {
		return nil, err
	}

	return companySlice, nil
}

func (companyDao) FindAll(ctx context.Context, q Queryer) ([]models.CompanyEntity, error) {
	const query = `
		select * from "companies"
		order by "id" asc ;
	`

	var companySlice []models.CompanyEntity

	if err := selectSlice(ctx, q, &companySlice, query); err != nil {
		return nil, err
	}

	return companySlice, nil
}

func (companyDao) FindByContactEmail(
	ctx context.Context,
	q Queryer,
	email string,
) ([]models.CompanyEntity, error) {
	const query = `
		select * from "companies"
		where lower(trim("contact_email")) = lower(trim($1))
		order by "id" asc ;
	`

	var companySlice []models.CompanyEntity

	if err := selectSlice(ctx, q, &companySlice, query, email); err != nil {
		return nil, err
	}

	return companySlice, nil
}

func (companyDao) FindByEmailOrName(
	ctx context.Context,
	q Queryer,
	email, name string,
) ([]models.CompanyEntity, error) {
	const query = `
		select * from "companies"
		where lower(trim("contact_email")) = lower(trim($1))
		   or lower(trim("name")) = lower(trim($2))
		order by "id" asc ;
	`

	var companySlice []models.CompanyEntity

	if err := selectSlice(ctx, q, &companySlice, query, email, name); err != nil {
		return nil, err
	}

	return companySlice, nil
}

func (companyDao) UpdateSendColumns(
	ctx context.Context,
	q Queryer,
	company *models.CompanyEntity,
) error {
	const query = `
		update "companies"
		set "last_send_status" = :last_send_status ,
		    "last_send_time"   = :last_send_time ,
		    "last_error"       = :last_error
		where "id" = :id ;
	`

	result, err := execNamed(ctx, q, query, company)
	if err != nil {
		return err
	}

	return ensureRowsAffected(result)
}

func (companyDao) UpdateBounceColumns(
	ctx context.Context,
	q Queryer,
	company *models.CompanyEntity,
) error {
	const query = `
		update "companies"
		set "bounce_state"     = :bounce_state ,
		    "bounce_time"      = :bounce_time ,
		    "bounce_reason"    = :bounce_reason ,
		    "last_bounce_type" = :last_bounce_type
		where "id" = :id ;
	`

	result, err := execNamed(ctx, q, query, company)
	if err != nil {
		return err
	}

	return ensureRowsAffected(result)
}

func (companyDao) UpdateUnsubscribeColumns(
	ctx context.Context,
	q Queryer,
	company *models.CompanyEntity,
) error {
	const query = `
		update "companies"
		set "unsubscribe_state"  = :unsubscribe_state ,
		    "unsubscribe_time"   = :unsubscribe_time ,
		    "unsubscribe_reason" = :unsubscribe_reason
		where "id" = :id ;
	`

	result, err := execNamed(ctx, q, query, company)
	if err != nil {
		return err
	}

	return ensureRowsAffected(result)
}

func (companyDao) DeleteAll(ctx context.Context, q Queryer) error {
	const query = `
		delete from "companies" ;
	`

	_, err := execPositional(ctx, q, query)
	return err
}
