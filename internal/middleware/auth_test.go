package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"novaexam_backend/internal/config"
	"novaexam_backend/internal/model"
	"novaexam_backend/internal/util"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestAuthAndRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "test-secret", ExpireTime: time.Hour}}

	r := gin.New()
	admin := r.Group("/admin", AuthMiddleware(cfg), RoleMiddleware(model.Admin))
	admin.GET("/ping", func(c *gin.Context) { util.Success(c, nil) })

	token := func(role model.UserRole) string {
		u := &model.User{Username: "u", Role: role}
		u.ID = 1
		s, err := util.GenerateJWT(u, cfg.JWT.Secret, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		return "Bearer " + s
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"student", token(model.Student), http.StatusForbidden},
		{"admin", token(model.Admin), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusForbidden {
				var body util.Response
				if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
					t.Fatal(err)
				}
				if body.Message != util.ErrPermissionDenied.Error() {
					t.Errorf("message = %q, want %q", body.Message, util.ErrPermissionDenied.Error())
				}
			}
		})
	}
}
