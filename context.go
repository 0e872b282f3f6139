package goSession

import (
	"context"

	"github.com/MrEthical07/goSession/interceptor"
)

// WithoutAuth marks ctx so requests made with it through [Manager.HTTPClient] are sent
// as-is: no bearer token and no renewal on 401.
func WithoutAuth(ctx context.Context) context.Context {
	return interceptor.WithoutAuth(ctx)
}
