package auth

import (
	"context"
	"errors"
	"time"
)

type ctxKey int

const (
	ctxCounselorID ctxKey = iota
	ctxRole
	ctxTokenID
	ctxTokenExpiry
)

func WithIdentity(ctx context.Context, counselorID, role string) context.Context {
	ctx = context.WithValue(ctx, ctxCounselorID, counselorID)
	ctx = context.WithValue(ctx, ctxRole, role)
	return ctx
}

// WithToken records the verified token's id and expiry so it can be revoked.
func WithToken(ctx context.Context, jti string, expiresAt time.Time) context.Context {
	ctx = context.WithValue(ctx, ctxTokenID, jti)
	ctx = context.WithValue(ctx, ctxTokenExpiry, expiresAt)
	return ctx
}

func CounselorID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxCounselorID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("counselor_id not in context")
}

func Role(ctx context.Context) (string, error) {
	v := ctx.Value(ctxRole)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("role not in context")
}

func TokenID(ctx context.Context) (string, time.Time, error) {
	jti, _ := ctx.Value(ctxTokenID).(string)
	exp, _ := ctx.Value(ctxTokenExpiry).(time.Time)
	if jti == "" {
		return "", time.Time{}, errors.New("token id not in context")
	}
	return jti, exp, nil
}
