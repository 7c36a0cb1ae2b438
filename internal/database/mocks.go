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
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/lukasdietrich/outreach/internal/models"
)

// mockQueryer implements the sqlx.ExtContext portion of Queryer for mocks.
// Services never call these directly, they only hand the Queryer to a dao.
type mockQueryer struct {
	mock.Mock
}

func (m *mockQueryer) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	callArgs := m.Called(ctx, query, args)
	rows, _ := callArgs.Get(0).(*sql.Rows)
	return rows, callArgs.Error(1)
}

func (m *mockQueryer) QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error) {
	callArgs := m.Called(ctx, query, args)
	rows, _ := callArgs.Get(0).(*sqlx.Rows)
	return rows, callArgs.Error(1)
}

func (m *mockQueryer) QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row {
	callArgs := m.Called(ctx, query, args)
	row, _ := callArgs.Get(0).(*sqlx.Row)
	return row
}

func (m *mockQueryer) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	callArgs := m.Called(ctx, query, args)
	result, _ := callArgs.Get(0).(sql.Result)
	return result, callArgs.Error(1)
}

func (m *mockQueryer) DriverName() string {
	return driverName
}

func (m *mockQueryer) Rebind(query string) string {
	return query
}

func (m *mockQueryer) BindNamed(query string, arg interface{}) (string, []interface{}, error) {
	return query, nil, nil
}

// MockConn is a mock implementation of Conn.
type MockConn struct {
	mockQueryer
}

// Begin provides a mock function.
func (m *MockConn) Begin(ctx context.Context) (Tx, error) {
	args := m.Called(ctx)
	tx, _ := args.Get(0).(Tx)
	return tx, args.Error(1)
}

// Close provides a mock function.
func (m *MockConn) Close() error {
	return m.Called().Error(0)
}

// MockTx is a mock implementation of Tx.
type MockTx struct {
	mockQueryer
}

// Commit provides a mock function.
func (m *MockTx) Commit() error {
	return m.Called().Error(0)
}

// Rollback provides a mock function.
func (m *MockTx) Rollback() error {
	return m.Called().Error(0)
}

// RollbackWith provides a mock function.
func (m *MockTx) RollbackWith(callback func()) error {
	return m.Called(callback).Error(0)
}

// MockCompanyDao is a mock implementation of CompanyDao.
type MockCompanyDao struct {
	mock.Mock
}

// Insert provides a mock function.
func (m *MockCompanyDao) Insert(ctx context.Context, q Queryer, company *models.CompanyEntity) error {
	return m.Called(ctx, q, company).Error(0)
}

// FindByID provides a mock function.
func (m *MockCompanyDao) FindByID(ctx context.Context, q Queryer, id int64) (models.CompanyEntity, error) {
	args := m.Called(ctx, q, id)
	company, _ := args.Get(0).(models.CompanyEntity)
	return company, args.Error(1)
}

// FindRange provides a mock function.
func (m *MockCompanyDao) FindRange(ctx context.Context, q Queryer, start, end int64) ([]models.CompanyEntity, error) {
	args := m.Called(ctx, q, start, end)
	companySlice, _ := args.Get(0).([]models.CompanyEntity)
	return companySlice, args.Error(1)
}

// FindAll provides a mock function.
func (m *MockCompanyDao) FindAll(ctx context.Context, q Queryer) ([]models.CompanyEntity, error) {
	args := m.Called(ctx, q)
	companySlice, _ := args.Get(0).([]models.CompanyEntity)
	return companySlice, args.Error(1)
}

// FindByContactEmail provides a mock function.
func (m *MockCompanyDao) FindByContactEmail(ctx context.Context, q Queryer, email string) ([]models.CompanyEntity, error) {
	args := m.Called(ctx, q, email)
	companySlice, _ := args.Get(0).([]models.CompanyEntity)
	return companySlice, args.Error(1)
}

// FindByEmailOrName provides a mock function.
func (m *MockCompanyDao) FindByEmailOrName(ctx context.Context, q Queryer, email, name string) ([]models.CompanyEntity, error) {
	args := m.Called(ctx, q, email, name)
	companySlice, _ := args.Get(0).([]models.CompanyEntity)
	return companySlice, args.Error(1)
}

// UpdateSendColumns provides a mock function.
func (m *MockCompanyDao) UpdateSendColumns(ctx context.Context, q Queryer, company *models.CompanyEntity) error {
	return m.Called(ctx, q, company).Error(0)
}

// UpdateBounceColumns provides a mock function.
func (m *MockCompanyDao) UpdateBounceColumns(ctx context.Context, q Queryer, company *models.CompanyEntity) error {
	return m.Called(ctx, q, company).Error(0)
}

// UpdateUnsubscribeColumns provides a mock function.
func (m *MockCompanyDao) UpdateUnsubscribeColumns(ctx context.Context, q Queryer, company *models.CompanyEntity) error {
	return m.Called(ctx, q, company).Error(0)
}

// DeleteAll provides a mock function.
func (m *MockCompanyDao) DeleteAll(ctx context.Context, q Queryer) error {
	return m.Called(ctx, q).Error(0)
}
