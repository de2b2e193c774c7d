// internal/provider/mock.go
package provider

import (
	"context"
	"math/rand"
	"sync"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/msgblast-backend/internal/errors"
	"github.com/unclebandit/msgblast-backend/internal/model"
)

// MockSender simulates a provider for development and seeding. Sends succeed
// with the configured rate (default 90%).
type MockSender struct {
	SuccessRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewMockSender(successRate float64, seed int64) *MockSender {
	if successRate <= 0 {
		successRate = 0.9
	}
	return &MockSender{
		SuccessRate: successRate,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

func (m *MockSender) Send(ctx context.Context, rec *model.Recipient, content model.Content) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	roll := m.rng.Float64()
	m.mu.Unlock()

	if roll >= m.SuccessRate {
		return nil, appErrors.NewProvider("mock", "mock sending failed")
	}
	return &Result{MessageID: uuid.New().String(), ProviderStatus: "accepted"}, nil
}
