package services

import "context"

type scopeKey struct{}

// Scope is the position in a job that a context carries into logs and
// error reports. Each With helper copies the current scope and sets one field.
type Scope struct {
	JobID         string
	ItemIndex     int
	HasItem       bool
	Stage         string
	CorrelationID string
}

// ScopeFrom returns the scope attached to ctx, or the zero Scope.
func ScopeFrom(ctx context.Context) Scope {
	if ctx == nil {
		return Scope{}
	}
	s, _ := ctx.Value(scopeKey{}).(Scope)
	return s
}

func withScope(ctx context.Context, update func(*Scope)) context.Context {
	s := ScopeFrom(ctx)
	update(&s)
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithJobID scopes ctx to a job. A blank id leaves ctx unchanged.
func WithJobID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return withScope(ctx, func(s *Scope) { s.JobID = id })
}

// WithItemIndex scopes ctx to the zero-based source item.
func WithItemIndex(ctx context.Context, index int) context.Context {
	return withScope(ctx, func(s *Scope) { s.ItemIndex, s.HasItem = index, true })
}

// WithStage scopes ctx to a pipeline stage. A blank stage leaves ctx unchanged.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return withScope(ctx, func(s *Scope) { s.Stage = stage })
}

// WithCorrelationID tags ctx with the id of one collaborator call.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return withScope(ctx, func(s *Scope) { s.CorrelationID = id })
}
