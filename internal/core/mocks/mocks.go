// Package mocks provides testify mocks for the core ports.
package mocks

import (
	"context"
	"time"

	"github.com/dkeye/octopresence/internal/core"
	"github.com/dkeye/octopresence/internal/domain"
	"github.com/stretchr/testify/mock"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

type MockGroupStore struct{ mock.Mock }

func NewMockGroupStore(t testingT) *MockGroupStore {
	m := &MockGroupStore{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockGroupStore) Add(ctx context.Context, group string, channel domain.ChannelName, at time.Time) error {
	return m.Called(ctx, group, channel, at).Error(0)
}

func (m *MockGroupStore) Remove(ctx context.Context, group string, channel domain.ChannelName) error {
	return m.Called(ctx, group, channel).Error(0)
}

func (m *MockGroupStore) Count(ctx context.Context, group string, since time.Time) (int, error) {
	args := m.Called(ctx, group, since)
	return args.Int(0), args.Error(1)
}

func (m *MockGroupStore) Members(ctx context.Context, group string, since time.Time) ([]domain.ChannelName, error) {
	args := m.Called(ctx, group, since)
	members, _ := args.Get(0).([]domain.ChannelName)
	return members, args.Error(1)
}

func (m *MockGroupStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type MockTransport struct{ mock.Mock }

func NewMockTransport(t testingT) *MockTransport {
	m := &MockTransport{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockTransport) Open(ctx context.Context, channel domain.ChannelName) error {
	return m.Called(ctx, channel).Error(0)
}

func (m *MockTransport) Deliver(ctx context.Context, channel domain.ChannelName, env domain.Envelope) error {
	return m.Called(ctx, channel, env).Error(0)
}

func (m *MockTransport) Receive(ctx context.Context, channel domain.ChannelName) (domain.Envelope, error) {
	args := m.Called(ctx, channel)
	env, _ := args.Get(0).(domain.Envelope)
	return env, args.Error(1)
}

func (m *MockTransport) Close(ctx context.Context, channel domain.ChannelName) error {
	return m.Called(ctx, channel).Error(0)
}

type MockChannelLayer struct{ mock.Mock }

func NewMockChannelLayer(t testingT) *MockChannelLayer {
	m := &MockChannelLayer{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockChannelLayer) Send(ctx context.Context, channel domain.ChannelName, env domain.Envelope) error {
	return m.Called(ctx, channel, env).Error(0)
}

func (m *MockChannelLayer) GroupSend(ctx context.Context, group string, env domain.Envelope) (core.DeliveryResult, error) {
	args := m.Called(ctx, group, env)
	res, _ := args.Get(0).(core.DeliveryResult)
	return res, args.Error(1)
}

func (m *MockChannelLayer) Touch(ctx context.Context, group string, channel domain.ChannelName) error {
	return m.Called(ctx, group, channel).Error(0)
}

func (m *MockChannelLayer) Discard(ctx context.Context, group string, channel domain.ChannelName) error {
	return m.Called(ctx, group, channel).Error(0)
}

// CountActive records the resolved options rather than the closures so
// expectations can match on them.
func (m *MockChannelLayer) CountActive(ctx context.Context, group string, opts ...core.CountOption) (int, error) {
	var o core.CountOptions
	for _, opt := range opts {
		opt(&o)
	}
	args := m.Called(ctx, group, o)
	return args.Int(0), args.Error(1)
}

type MockStatusCache struct{ mock.Mock }

func NewMockStatusCache(t testingT) *MockStatusCache {
	m := &MockStatusCache{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockStatusCache) DeleteStatus(ctx context.Context, id domain.PrinterID) error {
	return m.Called(ctx, id).Error(0)
}

type MockPrinter struct{ mock.Mock }

func NewMockPrinter(t testingT) *MockPrinter {
	m := &MockPrinter{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPrinter) ID() domain.PrinterID {
	return m.Called().Get(0).(domain.PrinterID)
}

func (m *MockPrinter) ShouldWatch(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

type MockPrinterRepository struct{ mock.Mock }

func NewMockPrinterRepository(t testingT) *MockPrinterRepository {
	m := &MockPrinterRepository{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPrinterRepository) Printer(ctx context.Context, id domain.PrinterID) (core.Printer, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(core.Printer)
	return p, args.Error(1)
}

func (m *MockPrinterRepository) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
