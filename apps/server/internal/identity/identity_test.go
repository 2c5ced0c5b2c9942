package identity

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderResolver(t *testing.T) {
	res := HeaderResolver{QueryParam: "player"}

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set(DefaultHeader, "  alice ")
	id, err := res.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, "alice", id)

	r = httptest.NewRequest("GET", "/ws?player=bob", nil)
	id, err = res.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, "bob", id)

	_, err = res.Resolve(httptest.NewRequest("GET", "/ws", nil))
	assert.ErrorIs(t, err, ErrMissing)

	r = httptest.NewRequest("GET", "/ws?player=bad%20name", nil)
	_, err = res.Resolve(r)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestHeaderResolverIgnoresQueryByDefault(t *testing.T) {
	_, err := HeaderResolver{}.Resolve(httptest.NewRequest("GET", "/ws?player=bob", nil))
	assert.ErrorIs(t, err, ErrMissing)
}

func TestTokenResolver(t *testing.T) {
	res, err := ParseTokens("t1:alice, t2:bob")
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer t2")
	id, err := res.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, "bob", id)

	id, err = res.Resolve(httptest.NewRequest("GET", "/ws?token=t1", nil))
	require.NoError(t, err)
	assert.Equal(t, "alice", id)

	_, err = res.Resolve(httptest.NewRequest("GET", "/ws?token=nope", nil))
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = res.Resolve(httptest.NewRequest("GET", "/ws", nil))
	assert.ErrorIs(t, err, ErrMissing)

	_, err = ParseTokens("")
	assert.Error(t, err)
	_, err = ParseTokens("justtoken")
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	_, err := Normalize(strings.Repeat("x", 33))
	assert.ErrorIs(t, err, ErrInvalid)
	id, err := Normalize("p_1-a.b")
	require.NoError(t, err)
	assert.Equal(t, "p_1-a.b", id)
}

func TestNewResolverFromEnv(t *testing.T) {
	t.Setenv("IDENTITY_MODE", "")
	t.Setenv("IDENTITY_HEADER", "")
	t.Setenv("IDENTITY_QUERY_PARAM", "")
	res, mode, err := NewResolverFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ModeHeader, mode)
	assert.Equal(t, HeaderResolver{}, res)

	t.Setenv("IDENTITY_QUERY_PARAM", "player")
	res, _, err = NewResolverFromEnv()
	require.NoError(t, err)
	assert.Equal(t, HeaderResolver{QueryParam: "player"}, res)

	t.Setenv("IDENTITY_MODE", "token")
	t.Setenv("IDENTITY_TOKENS", "abc:carol")
	res, mode, err = NewResolverFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ModeToken, mode)
	assert.IsType(t, &TokenResolver{}, res)

	t.Setenv("IDENTITY_MODE", "ldap")
	_, _, err = NewResolverFromEnv()
	assert.Error(t, err)
}
