package backend

import (
	"context"
	"strings"
)

type ctxKey int

const (
	authorizationKey ctxKey = iota
	requestIDKey
)

// WithAuthorization 把调用方的 Authorization 头放入 ctx，随后端请求转发
func WithAuthorization(ctx context.Context, authorization string) context.Context {
	authorization = strings.TrimSpace(authorization)
	if authorization == "" {
		return ctx
	}
	return context.WithValue(ctx, authorizationKey, authorization)
}

// AuthorizationFromContext 读取调用方 Authorization
func AuthorizationFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(authorizationKey).(string)
	return value
}

// WithRequestID 透传请求 ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext 读取请求 ID
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}
