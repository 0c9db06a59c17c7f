// Package mocks provides test doubles for the analysis package.
package mocks

import (
	"context"

	analysis "github.com/deepbiz/directory/internal/analysis"
	mock "github.com/stretchr/testify/mock"
)

// MockAnalyzer is a mock type for the Analyzer interface.
type MockAnalyzer struct {
	mock.Mock
}

// Analyze provides a mock function with given fields: ctx, companyURL, text
func (_m *MockAnalyzer) Analyze(ctx context.Context, companyURL string, text string) (*analysis.Result, error) {
	ret := _m.Called(ctx, companyURL, text)

	if len(ret) == 0 {
		panic("no return value specified for Analyze")
	}

	var r0 *analysis.Result
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) (*analysis.Result, error)); ok {
		return rf(ctx, companyURL, text)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*analysis.Result)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// NewMockAnalyzer creates a new instance of MockAnalyzer.
func NewMockAnalyzer(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockAnalyzer {
	m := &MockAnalyzer{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
