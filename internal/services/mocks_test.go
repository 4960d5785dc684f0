package services

import (
	"context"

	"github.com/somexchange/backend/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockTx struct {
	mock.Mock
}

func (m *MockTx) GetAccount(ctx context.Context, code string) (*models.Account, error) {
	args := m.Called(code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockTx) ListAccounts(ctx context.Context) ([]models.Account, error) {
	args := m.Called()
	return args.Get(0).([]models.Account), args.Error(1)
}

func (m *MockTx) GetEntry(ctx context.Context, id string) (*models.LedgerEntry, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerEntry), args.Error(1)
}

func (m *MockTx) ListEntries(ctx context.Context, filter models.EntryFilter) ([]models.LedgerEntry, error) {
	args := m.Called(filter)
	return args.Get(0).([]models.LedgerEntry), args.Error(1)
}

func (m *MockTx) PutAccount(ctx context.Context, account *models.Account) error {
	args := m.Called(account)
	return args.Error(0)
}

func (m *MockTx) InsertEntry(ctx context.Context, entry *models.LedgerEntry) error {
	args := m.Called(entry)
	return args.Error(0)
}

func (m *MockTx) UpdateEntry(ctx context.Context, entry *models.LedgerEntry) error {
	args := m.Called(entry)
	return args.Error(0)
}

func (m *MockTx) DeleteEntry(ctx context.Context, id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockTx) Generation(ctx context.Context) (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTx) BumpGeneration(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}

type MockStatsCache struct {
	mock.Mock
}

func (m *MockStatsCache) Get(ctx context.Context, gen int64, scope string) (*models.StatsResult, error) {
	args := m.Called(gen, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StatsResult), args.Error(1)
}

func (m *MockStatsCache) Set(ctx context.Context, gen int64, scope string, result *models.StatsResult) error {
	args := m.Called(gen, scope, result)
	return args.Error(0)
}
