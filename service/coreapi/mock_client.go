package coreapi

import (
	"context"

	"github.com/antinvestor/mpesa-api/service/models"
	"github.com/stretchr/testify/mock"
)

// MockClient is a mock implementation of the DarajaApiClient interface.
type MockClient struct {
	mock.Mock
}

// RequestAccessToken mocks the RequestAccessToken method.
func (m *MockClient) RequestAccessToken(ctx context.Context) (*AccessTokenResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*AccessTokenResponse), args.Error(1)
}

// InitiateSTKPush mocks the InitiateSTKPush method.
func (m *MockClient) InitiateSTKPush(ctx context.Context, request *models.STKPushRequest, accessToken string, opts PushOptions) (*models.STKPushResponse, error) {
	args := m.Called(ctx, request, accessToken, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.STKPushResponse), args.Error(1)
}
