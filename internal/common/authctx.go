package common

import "context"

type subjectKey struct{}

// WithSubject records the subject of a verified admin token.
func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, subjectKey{}, sub)
}

// Subject returns the token subject recorded by WithSubject. Anonymous
// requests yield "", false.
func Subject(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(subjectKey{}).(string)
	return sub, ok && sub != ""
}
