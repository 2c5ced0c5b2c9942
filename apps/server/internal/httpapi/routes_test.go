package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"tetris-lite/apps/server/internal/lobby"
	"tetris-lite/apps/server/internal/match"
	"tetris-lite/apps/server/internal/results"
)

type fixture struct {
	router http.Handler
	lobby  *lobby.Lobby
	store  *results.MemoryStore
}

func newFixture(t *testing.T, adminToken string) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t, zaptest.Level(zap.ErrorLevel))
	store := results.NewMemoryStore(10)
	cfg := match.DefaultConfig()
	cfg.Seed = 3
	l := lobby.New(lobby.Options{
		Config: cfg,
		Store:  store,
		Logger: logger,
		Ticks:  make(chan time.Time),
	})
	t.Cleanup(func() { _ = l.Shutdown(context.Background()) })
	return &fixture{
		router: NewRouter(Options{Lobby: l, Store: store, AdminToken: adminToken, Logger: logger}),
		lobby:  l,
		store:  store,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestCreateListAndGetMatch(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(t, http.MethodPost, "/matches", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[map[string]any](t, rec)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "waiting", created["state"])

	rec = f.do(t, http.MethodGet, "/matches", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Items []match.Info `json:"items"`
	}](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, id, list.Items[0].ID)

	rec = f.do(t, http.MethodGet, "/matches/"+id, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/matches/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAbortRequiresAdmin(t *testing.T) {
	f := newFixture(t, "s3cret")
	m, err := f.lobby.Create()
	require.NoError(t, err)
	path := "/matches/" + m.ID + "/abort"

	rec := f.do(t, http.MethodPost, path, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = f.do(t, http.MethodPost, path, "", bearer("wrong"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, path, `{"reason":"maintenance"}`, bearer("s3cret"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, match.StateFinished, m.Info().State)
	assert.Equal(t, results.OutcomeAborted, m.Info().Outcome)

	rec = f.do(t, http.MethodPost, "/matches/nope/abort", "", bearer("s3cret"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodPost, path, "{", bearer("s3cret"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAbortDisabledWithoutToken(t *testing.T) {
	f := newFixture(t, "")
	m, err := f.lobby.Create()
	require.NoError(t, err)
	rec := f.do(t, http.MethodPost, "/matches/"+m.ID+"/abort", "", bearer(""))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestResults(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, f.store.Save(ctx, results.Summary{
		MatchID: "m1", Outcome: results.OutcomeWin, Winner: "a",
		Participants: []string{"a", "b"}, FinishedAt: now,
	}))
	require.NoError(t, f.store.Save(ctx, results.Summary{
		MatchID: "m2", Outcome: results.OutcomeDraw,
		Participants: []string{"c", "d"}, FinishedAt: now.Add(time.Second),
	}))

	rec := f.do(t, http.MethodGet, "/results?limit=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	recent := decode[struct {
		Items []results.Summary `json:"items"`
	}](t, rec)
	require.Len(t, recent.Items, 1)
	assert.Equal(t, "m2", recent.Items[0].MatchID)

	rec = f.do(t, http.MethodGet, "/results/m1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[results.Summary](t, rec)
	assert.Equal(t, "a", got.Winner)

	rec = f.do(t, http.MethodGet, "/results/zzz", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer  abc "))
	assert.Equal(t, "", bearerToken("Basic abc"))
	assert.Equal(t, "", bearerToken(""))
}
