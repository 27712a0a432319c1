// Package auth carries the caller's identity through a request context.
// Authentication itself happens upstream; by the time a request reaches a
// handler it has been resolved to an active member of one home.
package auth

import "context"

type contextKey struct{}

type Identity struct {
	MemberID int64
	HomeID   int64
	Name     string
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

func HomeID(ctx context.Context) int64 {
	id, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return id.HomeID
}

func MemberID(ctx context.Context) int64 {
	id, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return id.MemberID
}
