package matching_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/swipecook/internal/auth"
	"github.com/oggyb/swipecook/internal/db/dbtest"
	"github.com/oggyb/swipecook/internal/service/matching"
)

func newRouter(f *fixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api/v1", auth.NewIdentifier("").Middleware())
	matching.NewRegistrar(f.svc).RegisterRoutes(api)
	return r
}

func call(t *testing.T, r http.Handler, user, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if out != nil && w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
	return w.Code
}

func TestHTTP_MatchFlow(t *testing.T) {
	f := newFixture(t)
	dbtest.Pair(t, f.db, "u1", "u2")
	r := newRouter(f)

	var dec matching.RecordDecisionResponse
	require.Equal(t, http.StatusOK, call(t, r, "u1", http.MethodPost, "/api/v1/decisions",
		matching.RecordDecisionRequest{ItemID: "item-007", IsPositive: true}, &dec))
	assert.False(t, dec.Matched)

	require.Equal(t, http.StatusOK, call(t, r, "u2", http.MethodPost, "/api/v1/decisions",
		matching.RecordDecisionRequest{ItemID: "item-007", IsPositive: true}, &dec))
	require.True(t, dec.Matched)
	id := dec.MatchID

	var list matching.ListMatchesResponse
	require.Equal(t, http.StatusOK, call(t, r, "u1", http.MethodGet, "/api/v1/matches?status=matched&limit=5", nil, &list))
	require.Len(t, list.Matches, 1)
	assert.Equal(t, id, list.Matches[0].ID)

	var mr matching.MatchResponse
	require.Equal(t, http.StatusOK, call(t, r, "u2", http.MethodPost, "/api/v1/matches/"+id+"/status",
		map[string]string{"status": "cooked"}, &mr))
	assert.Equal(t, "cooked", mr.Match.Status)

	require.Equal(t, http.StatusOK, call(t, r, "u1", http.MethodPost, "/api/v1/matches/"+id+"/ratings",
		map[string]int{"rating": 5}, &mr))
	require.Equal(t, http.StatusOK, call(t, r, "u1", http.MethodPost, "/api/v1/matches/"+id+"/notes",
		map[string]string{"text": "more garlic"}, &mr))
	assert.Len(t, mr.Match.Notes, 1)

	var stats matching.GetStatsResponse
	require.Equal(t, http.StatusOK, call(t, r, "u1", http.MethodGet, "/api/v1/stats", nil, &stats))
	assert.EqualValues(t, 1, stats.ItemsCooked)
	assert.Equal(t, "u2", stats.PartnerID)
}

func TestHTTP_Errors(t *testing.T) {
	f := newFixture(t)
	dbtest.Pair(t, f.db, "u1", "u2")
	r := newRouter(f)

	assert.Equal(t, http.StatusUnauthorized, call(t, r, "", http.MethodGet, "/api/v1/stats", nil, nil))
	assert.Equal(t, http.StatusBadRequest, call(t, r, "u1", http.MethodGet, "/api/v1/matches?status=burnt", nil, nil))
	assert.Equal(t, http.StatusNotFound, call(t, r, "u1", http.MethodGet, "/api/v1/matches/nope", nil, nil))

	f.mutualLike(t, "u1", "u2", "item-001")
	assert.Equal(t, http.StatusConflict, call(t, r, "u1", http.MethodPost, "/api/v1/decisions",
		matching.RecordDecisionRequest{ItemID: "item-001", IsPositive: false}, nil))

	assert.Equal(t, http.StatusBadRequest, call(t, r, "u1", http.MethodPost, "/api/v1/decisions", nil, nil), "empty body")
}
