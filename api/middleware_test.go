package api_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garnizeh/outreach/api"
)

func serve(h http.Handler, method, path string, header http.Header) *http.Response {
	req := httptest.NewRequest(method, path, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Result()
}

func TestLoggingMiddleware_PassesThroughStatus(t *testing.T) {
	h := api.LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, "queued")
	}))

	res := serve(h, http.MethodPost, "/v1/events", nil)
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)

	assert.Equal(t, http.StatusAccepted, res.StatusCode)
	assert.Equal(t, "queued", string(body))
}

func TestCORSMiddleware(t *testing.T) {
	called := 0
	h := api.CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called++
		w.WriteHeader(http.StatusOK)
	}))

	pre := serve(h, http.MethodOptions, "/v1/leads/3", nil)
	pre.Body.Close()
	assert.Equal(t, http.StatusNoContent, pre.StatusCode)
	assert.Equal(t, "*", pre.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, pre.Header.Get("Access-Control-Allow-Methods"), "PATCH")
	assert.Zero(t, called, "preflight must not reach the handler")

	res := serve(h, http.MethodPatch, "/v1/leads/3", nil)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 1, called)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := api.RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("provider exploded")
	}))

	res := serve(h, http.MethodPost, "/v1/leads/1/send", nil)
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)

	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Contains(t, string(body), "Internal Server Error")
}

func TestMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	r.Use(api.MetricsMiddleware)
	r.HandleFunc("/v1/leads/{id:[0-9]+}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, id := range []string{"1", "22", "333"} {
		res := serve(r, http.MethodGet, "/v1/leads/"+id, nil)
		res.Body.Close()
	}

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	var seen float64
	for _, mf := range families {
		if mf.GetName() != "outreach_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			assert.NotContains(t, labels["route"], "333", "lead ids must not become label values")
			if labels["route"] == "/v1/leads/{id:[0-9]+}" && labels["status"] == "200" {
				seen += m.GetCounter().GetValue()
			}
		}
	}
	assert.GreaterOrEqual(t, seen, float64(3))
}

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return "Bearer " + s
}

func TestJWTAuthMiddlewareWithSecret(t *testing.T) {
	const secret = "outreach-test-secret"
	exp := time.Now().Add(time.Hour).Unix()

	var gotUser int64
	h := api.JWTAuthMiddlewareWithSecret(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = api.UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name     string
		auth     string
		want     int
		wantUser int64
	}{
		{name: "no header", auth: "", want: http.StatusUnauthorized},
		{name: "not bearer", auth: "Basic dXNlcjpwYXNz", want: http.StatusUnauthorized},
		{name: "empty bearer", auth: "Bearer ", want: http.StatusUnauthorized},
		{name: "garbage token", auth: "Bearer not.a.jwt", want: http.StatusUnauthorized},
		{name: "wrong secret", auth: sign(t, "other", jwt.MapClaims{"user_id": 7, "exp": exp}), want: http.StatusUnauthorized},
		{name: "expired", auth: sign(t, secret, jwt.MapClaims{"user_id": 7, "exp": time.Now().Add(-time.Minute).Unix()}), want: http.StatusUnauthorized},
		{name: "no user_id", auth: sign(t, secret, jwt.MapClaims{"sub": "x", "exp": exp}), want: http.StatusUnauthorized},
		{name: "zero user_id", auth: sign(t, secret, jwt.MapClaims{"user_id": 0, "exp": exp}), want: http.StatusUnauthorized},
		{name: "numeric user_id", auth: sign(t, secret, jwt.MapClaims{"user_id": 7, "exp": exp}), want: http.StatusOK, wantUser: 7},
		{name: "string user_id", auth: sign(t, secret, jwt.MapClaims{"user_id": "42", "exp": exp}), want: http.StatusOK, wantUser: 42},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			gotUser = 0
			header := http.Header{}
			if c.auth != "" {
				header.Set("Authorization", c.auth)
			}
			res := serve(h, http.MethodGet, "/v1/leads", header)
			res.Body.Close()

			assert.Equal(t, c.want, res.StatusCode)
			assert.Equal(t, c.wantUser, gotUser)
		})
	}
}
