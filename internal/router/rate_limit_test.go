package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRateLimitMiddlewareWithoutClient(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimitMiddleware(nil, RateLimitRule{WindowSeconds: 60, MaxRequests: 1}, KeyByIP))
	r.POST("/api/mercadopago/pagos", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/mercadopago/pagos", nil))
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok":true`) {
			t.Fatalf("request %d should pass through, got %d %s", i, w.Code, w.Body.String())
		}
	}
}

func TestParseWindowResult(t *testing.T) {
	cases := []struct {
		name    string
		input   interface{}
		count   int64
		ttl     int64
		wantErr bool
	}{
		{name: "first hit", input: []interface{}{int64(1), int64(60)}, count: 1, ttl: 60},
		{name: "missing expiry", input: []interface{}{int64(7), int64(-1)}, count: 7, ttl: -1},
		{name: "short reply", input: []interface{}{int64(1)}, wantErr: true},
		{name: "string count", input: []interface{}{"1", int64(60)}, wantErr: true},
		{name: "not a list", input: "OK", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			count, ttl, err := parseWindowResult(tc.input)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err want %v got %v", tc.wantErr, err)
			}
			if !tc.wantErr && (count != tc.count || ttl != tc.ttl) {
				t.Fatalf("want %d/%d got %d/%d", tc.count, tc.ttl, count, ttl)
			}
		})
	}
}
