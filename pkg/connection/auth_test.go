package connection_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/llmconn/pkg/connection"
	"github.com/effective-security/llmconn/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticToken(t *testing.T) {
	t.Parallel()

	creds, err := connection.StaticToken("tok").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", creds.Token)

	_, err = connection.StaticToken("").Token(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, llms.ErrAuthentication))
}

func TestEnvToken(t *testing.T) {
	t.Setenv("LLMCONN_TEST_TOKEN", "env-tok")

	creds, err := connection.EnvToken("LLMCONN_TEST_TOKEN").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "env-tok", creds.Token)

	// the provider is bound at construction; later changes to the
	// environment are not observed
	provider := connection.EnvToken("LLMCONN_TEST_TOKEN")
	t.Setenv("LLMCONN_TEST_TOKEN", "changed")
	creds, err = provider.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "env-tok", creds.Token)

	_, err = connection.EnvToken("LLMCONN_TEST_MISSING").Token(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, llms.ErrAuthentication))
}

func TestNoAuth(t *testing.T) {
	t.Parallel()

	creds, err := connection.NoAuth().Token(context.Background())
	require.NoError(t, err)
	assert.Empty(t, creds.Token)
}
