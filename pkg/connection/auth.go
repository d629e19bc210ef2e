package connection

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmconn/pkg/llms"
)

// Credentials is opaque credential material supplied by a TokenProvider.
// The connection holds a reference for the duration of one call and never
// persists or inspects it.
type Credentials struct {
	// Token is the bearer token or API key.
	Token string
}

// TokenProvider supplies credentials for outbound calls. Implementations
// own acquisition and refresh; they are created once per process and must
// be safe for concurrent use.
type TokenProvider interface {
	Token(ctx context.Context) (Credentials, error)
}

// TokenProviderFunc adapts a function to a TokenProvider.
type TokenProviderFunc func(ctx context.Context) (Credentials, error)

// Token implements the TokenProvider interface.
func (f TokenProviderFunc) Token(ctx context.Context) (Credentials, error) {
	return f(ctx)
}

// StaticToken returns a provider that always serves the given token.
func StaticToken(token string) TokenProvider {
	return TokenProviderFunc(func(context.Context) (Credentials, error) {
		if token == "" {
			return Credentials{}, errors.WithMessage(llms.ErrAuthentication, "empty token")
		}
		return Credentials{Token: token}, nil
	})
}

// EnvToken reads the named environment variable once, at construction,
// and serves its value for the life of the process.
func EnvToken(envVar string) TokenProvider {
	token := os.Getenv(envVar)
	return TokenProviderFunc(func(context.Context) (Credentials, error) {
		if token == "" {
			return Credentials{}, errors.WithMessagef(llms.ErrAuthentication, "environment variable %s is not set", envVar)
		}
		return Credentials{Token: token}, nil
	})
}

// NoAuth returns a provider for endpoints that require no credentials,
// such as a local model runner.
func NoAuth() TokenProvider {
	return TokenProviderFunc(func(context.Context) (Credentials, error) {
		return Credentials{}, nil
	})
}
