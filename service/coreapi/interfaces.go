package coreapi

import (
	"context"

	"github.com/antinvestor/mpesa-api/service/models"
)

//nolint:revive // DarajaApiClient follows original API naming convention
type DarajaApiClient interface {
	RequestAccessToken(ctx context.Context) (*AccessTokenResponse, error)
	InitiateSTKPush(ctx context.Context, request *models.STKPushRequest, accessToken string, opts PushOptions) (*models.STKPushResponse, error)
}
