package auth

import (
	"context"

	"connectrpc.com/connect"
)

// NewInterceptor authenticates unary connect calls. Procedures listed in
// public may be called without a token; when one is present it is still
// verified and attached to the context.
func NewInterceptor(tokens *Tokens, public ...string) connect.UnaryInterceptorFunc {
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				return next(ctx, req)
			}
			token := BearerToken(req.Header())
			if token == "" {
				if open[req.Spec().Procedure] {
					return next(ctx, req)
				}
				return nil, connect.NewError(connect.CodeUnauthenticated, ErrMissingToken)
			}
			id, err := tokens.Verify(token)
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}
			return next(WithIdentity(ctx, id), req)
		}
	}
}
