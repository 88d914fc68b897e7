package services

import (
	"context"
	"image"

	"github.com/stretchr/testify/mock"
	"github.com/wondr/rembg/internal/models"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) GetBalance(ctx context.Context, identity string) (int64, error) {
	args := m.Called(ctx, identity)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedger) SetBalance(ctx context.Context, identity string, value int64) error {
	args := m.Called(ctx, identity, value)
	return args.Error(0)
}

func (m *MockLedger) CompareAndSetBalance(ctx context.Context, identity string, expected, next int64) (bool, error) {
	args := m.Called(ctx, identity, expected, next)
	return args.Bool(0), args.Error(1)
}

type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) RemoveBackground(ctx context.Context, img image.Image) (image.Image, error) {
	args := m.Called(ctx, img)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(image.Image), args.Error(1)
}

type MockRefundQueue struct {
	mock.Mock
}

func (m *MockRefundQueue) Enqueue(ctx context.Context, task models.RefundTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event models.CreditEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) Close() {
	m.Called()
}
