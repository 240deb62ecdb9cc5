package utils

import (
	"context"

	"github.com/mmdatafocus/hotel_backend/appctx"
)

var (
	ContextKeyToken         = appctx.ContextKeyToken
	ContextKeyPropertyId    = appctx.ContextKeyPropertyId
	ContextKeyUserId        = appctx.ContextKeyUserId
	ContextKeyChannel       = appctx.ContextKeyChannel
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
)

func GetTokenFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyToken)
}

func GetPropertyIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyPropertyId)
}

func GetUserIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyUserId)
}

func GetChannelFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyChannel)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetTokenInContext(ctx context.Context, token string) context.Context {
	return appctx.Set(ctx, ContextKeyToken, token)
}

func SetPropertyIdInContext(ctx context.Context, propertyId string) context.Context {
	return appctx.Set(ctx, ContextKeyPropertyId, propertyId)
}

func SetUserIdInContext(ctx context.Context, userId int) context.Context {
	return appctx.Set(ctx, ContextKeyUserId, userId)
}

func SetChannelInContext(ctx context.Context, channel string) context.Context {
	return appctx.Set(ctx, ContextKeyChannel, channel)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}
