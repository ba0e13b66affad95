package admin_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/udpinsert/admin"
	"github.com/temoto/udpinsert/log2"
	"github.com/temoto/udpinsert/schema"
)

type rawStat string

func (s rawStat) String() string { return string(s) }

func testRouter(t testing.TB) http.Handler {
	r := schema.NewRegistry()
	s, err := schema.New(schema.Identifier{0xab, 1, 1}, []byte("topsecret"), "weather",
		[]schema.Record{{Name: "temp", Fields: []schema.Field{{Name: "c", Type: schema.Uint16}}}})
	require.NoError(t, err)
	require.NoError(t, r.Add(s))
	return admin.NewRouter(admin.Options{
		Log:        log2.NewTest(t, log2.LDebug),
		Registry:   r,
		Stats:      map[string]fmt.Stringer{"server": rawStat(`{"accepted":1}`), "spool": rawStat(`{"sent":0}`)},
		LastAccept: func() time.Time { return time.Unix(1600000000, 0) },
	})
}

func testGet(t testing.TB, h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestStats(t *testing.T) {
	t.Parallel()
	w := testGet(t, testRouter(t), "/stats")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"server":{"accepted":1},"spool":{"sent":0}}`, w.Body.String())
}

func TestSchemas(t *testing.T) {
	t.Parallel()
	h := testRouter(t)
	w := testGet(t, h, "/schemas")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"identifier":"ab0101","database":"weather","size":2,
		"records":[{"name":"temp","fields":["c:uint16"]}]}]`, w.Body.String())
	assert.NotContains(t, w.Body.String(), "topsecret")

	w = testGet(t, h, "/schemas/AB0101")
	require.Equal(t, http.StatusOK, w.Code)
	var v map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, "weather", v["database"])

	w = testGet(t, h, "/schemas/000000")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = testGet(t, h, "/schemas/xyz")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	t.Parallel()
	w := testGet(t, testRouter(t), "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"schemas":1,"last_accept":"2020-09-13T12:26:40Z"}`, w.Body.String())
}

func TestDebugVars(t *testing.T) {
	t.Parallel()
	w := testGet(t, testRouter(t), "/debug/vars")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "memstats")
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()
	w := httptest.NewRecorder()
	testRouter(t).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/stats", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestPublishStats(t *testing.T) {
	t.Parallel()
	admin.PublishStats("test_admin_", map[string]fmt.Stringer{"server": rawStat(`{"accepted":2}`)})
	w := testGet(t, testRouter(t), "/debug/vars")
	assert.Contains(t, w.Body.String(), `"test_admin_server": {"accepted":2}`)
}
