package service

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const ctxUserIDKey ctxKey = "userID"

func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxUserIDKey, id)
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	v, ok := ctx.Value(ctxUserIDKey).(uuid.UUID)
	return v, ok && v != uuid.Nil
}

func requireUser(ctx context.Context) (uuid.UUID, error) {
	uid, ok := UserIDFromContext(ctx)
	if !ok {
		return uuid.Nil, ErrUnauthorized
	}
	return uid, nil
}
