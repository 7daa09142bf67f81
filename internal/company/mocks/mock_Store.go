// Package mocks provides test doubles for the company store.
package mocks

import (
	"context"

	company "github.com/sells-group/athena/internal/company"
	mock "github.com/stretchr/testify/mock"
)

// MockStore is a mock type for the company.Store interface.
type MockStore struct {
	mock.Mock
}

// ListCompanies provides a mock function with given fields: ctx
func (_m *MockStore) ListCompanies(ctx context.Context) ([]company.Company, error) {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for ListCompanies")
	}

	var r0 []company.Company
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]company.Company)
	}
	return r0, ret.Error(1)
}

// GetCompany provides a mock function with given fields: ctx, id
func (_m *MockStore) GetCompany(ctx context.Context, id int64) (*company.Company, error) {
	ret := _m.Called(ctx, id)

	if len(ret) == 0 {
		panic("no return value specified for GetCompany")
	}

	var r0 *company.Company
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*company.Company)
	}
	return r0, ret.Error(1)
}

// GetSignals provides a mock function with given fields: ctx, companyID
func (_m *MockStore) GetSignals(ctx context.Context, companyID int64) ([]company.Signal, error) {
	ret := _m.Called(ctx, companyID)

	if len(ret) == 0 {
		panic("no return value specified for GetSignals")
	}

	var r0 []company.Signal
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]company.Signal)
	}
	return r0, ret.Error(1)
}

// GetPrograms provides a mock function with given fields: ctx, companyID
func (_m *MockStore) GetPrograms(ctx context.Context, companyID int64) ([]company.Program, error) {
	ret := _m.Called(ctx, companyID)

	if len(ret) == 0 {
		panic("no return value specified for GetPrograms")
	}

	var r0 []company.Program
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]company.Program)
	}
	return r0, ret.Error(1)
}

// UpdateCompany provides a mock function with given fields: ctx, id, p
func (_m *MockStore) UpdateCompany(ctx context.Context, id int64, p company.Patch) error {
	ret := _m.Called(ctx, id, p)

	if len(ret) == 0 {
		panic("no return value specified for UpdateCompany")
	}
	return ret.Error(0)
}

// ReassignSignals provides a mock function with given fields: ctx, fromID, toID
func (_m *MockStore) ReassignSignals(ctx context.Context, fromID int64, toID int64) (int64, error) {
	ret := _m.Called(ctx, fromID, toID)

	if len(ret) == 0 {
		panic("no return value specified for ReassignSignals")
	}
	return ret.Get(0).(int64), ret.Error(1)
}

// ReassignPrograms provides a mock function with given fields: ctx, fromID, toID
func (_m *MockStore) ReassignPrograms(ctx context.Context, fromID int64, toID int64) (int64, error) {
	ret := _m.Called(ctx, fromID, toID)

	if len(ret) == 0 {
		panic("no return value specified for ReassignPrograms")
	}
	return ret.Get(0).(int64), ret.Error(1)
}

// DeleteCompany provides a mock function with given fields: ctx, id
func (_m *MockStore) DeleteCompany(ctx context.Context, id int64) error {
	ret := _m.Called(ctx, id)

	if len(ret) == 0 {
		panic("no return value specified for DeleteCompany")
	}
	return ret.Error(0)
}

// SnapshotHeatScores provides a mock function with given fields: ctx
func (_m *MockStore) SnapshotHeatScores(ctx context.Context) error {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for SnapshotHeatScores")
	}
	return ret.Error(0)
}

// SetHeatScore provides a mock function with given fields: ctx, id, score
func (_m *MockStore) SetHeatScore(ctx context.Context, id int64, score int) error {
	ret := _m.Called(ctx, id, score)

	if len(ret) == 0 {
		panic("no return value specified for SetHeatScore")
	}
	return ret.Error(0)
}

// InTx provides a mock function with given fields: ctx, fn. When no return
// value is configured as an error, fn runs against the mock itself.
func (_m *MockStore) InTx(ctx context.Context, fn func(company.Tx) error) error {
	ret := _m.Called(ctx, fn)

	if len(ret) == 0 {
		panic("no return value specified for InTx")
	}
	if err := ret.Error(0); err != nil {
		return err
	}
	return fn(_m)
}

// NewMockStore creates a new instance of MockStore. It also registers a
// cleanup function to assert the mocks expectations.
func NewMockStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStore {
	m := &MockStore{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

var _ company.Store = (*MockStore)(nil)
