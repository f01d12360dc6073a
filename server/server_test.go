package server

import (
	"encoding/json"
	"go/types"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHumanPayload(t *testing.T) {
	cases := []struct {
		hp  HumanPayload
		out string
	}{
		{HumanPayload{T: types.Bool, Bool: true}, `{"bool":true}`},
		{HumanPayload{T: types.Float64, Float: 1.5}, `{"f64":1.5}`},
		{HumanPayload{T: types.Int, Int: 12}, `{"int":12}`},
		{HumanPayload{T: types.String, String: "packed12"}, `{"str":"packed12"}`},
	}
	for _, c := range cases {
		w := httptest.NewRecorder()
		c.hp.EncodeAndRespond(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, c.out, w.Body.String())
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	}
}

func TestHumanPayloadUnsupported(t *testing.T) {
	w := httptest.NewRecorder()
	HumanPayload{T: types.Complex128}.EncodeAndRespond(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRouteTableBind(t *testing.T) {
	rt := RouteTable{
		{http.MethodGet, "/mode"}: func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("get"))
		},
		{http.MethodPost, "/mode"}: func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("post"))
		},
		{http.MethodGet, "/burst"}: func(w http.ResponseWriter, r *http.Request) {},
	}
	mux := chi.NewRouter()
	rt.Bind(mux)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(method, "/mode", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/mode", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/endpoints", nil))
	var list []string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	assert.Equal(t, []string{"GET /burst", "GET /mode", "POST /mode"}, list)
}

func TestReplyWithFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))

	w := httptest.NewRecorder()
	ReplyWithFile(w, httptest.NewRequest(http.MethodGet, "/", nil), "a.txt", dir)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", w.Body.String())

	w = httptest.NewRecorder()
	ReplyWithFile(w, httptest.NewRequest(http.MethodGet, "/", nil), "missing.txt", dir)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
