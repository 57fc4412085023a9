package sync

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/FACorreiaa/loci-offline-sync/internal/remote"
)

// MockRemoteClient is a testify mock over the remote document store.
type MockRemoteClient struct {
	mock.Mock
}

func (m *MockRemoteClient) FetchCollection(ctx context.Context, name string) ([]remote.Document, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]remote.Document), args.Error(1)
}

func (m *MockRemoteClient) FetchSubcollection(ctx context.Context, parentCollection, parentID, child string) ([]remote.Document, error) {
	args := m.Called(ctx, parentCollection, parentID, child)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]remote.Document), args.Error(1)
}

func (m *MockRemoteClient) CreateDocument(ctx context.Context, collection, id string, fields map[string]remote.Value) error {
	args := m.Called(ctx, collection, id, fields)
	return args.Error(0)
}

func (m *MockRemoteClient) CreateSubdocument(ctx context.Context, parentCollection, parentID, child, id string, fields map[string]remote.Value) error {
	args := m.Called(ctx, parentCollection, parentID, child, id, fields)
	return args.Error(0)
}
