package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dujiao-next/affiliate-settlement/internal/authz"
	"github.com/dujiao-next/affiliate-settlement/internal/config"
	"github.com/dujiao-next/affiliate-settlement/internal/constants"
	handlershared "github.com/dujiao-next/affiliate-settlement/internal/http/handlers/shared"
	"github.com/dujiao-next/affiliate-settlement/internal/models"
	"github.com/dujiao-next/affiliate-settlement/internal/repository"
	"github.com/dujiao-next/affiliate-settlement/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": getRequestID(c)})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(requestIDHeader, "req-123")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	if w.Header().Get(requestIDHeader) != "req-123" {
		t.Fatalf("response request id want req-123 got %s", w.Header().Get(requestIDHeader))
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	if resp["request_id"] != "req-123" {
		t.Fatalf("context request id want req-123 got %s", resp["request_id"])
	}

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w2, req2)
	generated := w2.Header().Get(requestIDHeader)
	if generated == "" {
		t.Fatalf("generated request id should not be empty")
	}
	if resp := strings.TrimSpace(generated); resp == "" {
		t.Fatalf("generated request id should not be blank")
	}
}

func decodeStatusCode(t *testing.T, body []byte) int {
	t.Helper()
	var resp struct {
		StatusCode int `json:"status_code"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	return resp.StatusCode
}

func TestUserJWTAuthMiddlewareWithoutService(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(UserJWTAuthMiddleware(nil))
	r.GET("/api/v1/wallet", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
	req.Header.Set("Authorization", "Bearer anything")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	if code := decodeStatusCode(t, w.Body.Bytes()); code != 401 {
		t.Fatalf("status_code want 401 got %d", code)
	}
}

func TestUserJWTAuthMiddlewareSetsContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupRouterTestDB(t)
	user := models.User{Email: "aff@example.com", Role: constants.UserRoleAffiliate, Status: constants.UserStatusActive}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	authService := service.NewUserAuthService(config.JWTConfig{SecretKey: "router-secret"}, repository.NewUserRepository(db))
	token, _, err := authService.GenerateUserJWT(&user, time.Hour)
	if err != nil {
		t.Fatalf("generate token failed: %v", err)
	}

	r := gin.New()
	r.Use(UserJWTAuthMiddleware(authService))
	r.GET("/api/v1/wallet", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetUint(handlershared.ContextUserID),
			"role":    handlershared.GetUserRole(c),
		})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	var resp struct {
		UserID uint   `json:"user_id"`
		Role   string `json:"role"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	if resp.UserID != user.ID || resp.Role != constants.UserRoleAffiliate {
		t.Fatalf("unexpected context values: %+v", resp)
	}

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
	req2.Header.Set("Authorization", "Token "+token)
	r.ServeHTTP(w2, req2)
	if code := decodeStatusCode(t, w2.Body.Bytes()); code != 401 {
		t.Fatalf("non-bearer header should be rejected, got %d", code)
	}
}

func TestRequireRoleMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(handlershared.ContextUserRole, c.GetHeader("X-Test-Role"))
		c.Next()
	})
	r.POST("/products", RequireRoleMiddleware(constants.UserRoleBusiness), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/products", nil)
	req.Header.Set("X-Test-Role", constants.UserRoleAffiliate)
	r.ServeHTTP(w, req)
	if code := decodeStatusCode(t, w.Body.Bytes()); code != 403 {
		t.Fatalf("affiliate should be forbidden, got %d", code)
	}

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/products", nil)
	req2.Header.Set("X-Test-Role", "Business")
	r.ServeHTTP(w2, req2)
	if !strings.Contains(w2.Body.String(), `"ok":true`) {
		t.Fatalf("business should pass, got %s", w2.Body.String())
	}
}

func TestAdminRBACMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupRouterTestDB(t)
	authzService, err := authz.NewService(db)
	if err != nil {
		t.Fatalf("init authz failed: %v", err)
	}
	if err := authzService.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap roles failed: %v", err)
	}
	if err := authzService.SetUserRoles(7, []string{"finance"}); err != nil {
		t.Fatalf("set roles failed: %v", err)
	}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(handlershared.ContextUserID, uint(7))
		c.Set(handlershared.ContextUserRole, c.GetHeader("X-Test-Role"))
		c.Next()
	})
	r.Use(AdminRBACMiddleware(authzService))
	r.POST("/api/v1/admin/withdrawals/:id/approve", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.POST("/api/v1/admin/sales/:id/cancel", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	cases := []struct {
		name string
		role string
		path string
		want int
	}{
		{name: "finance approves withdrawal", role: constants.UserRoleAdmin, path: "/api/v1/admin/withdrawals/1/approve", want: 0},
		{name: "finance cannot cancel sale", role: constants.UserRoleAdmin, path: "/api/v1/admin/sales/1/cancel", want: 403},
		{name: "non admin rejected", role: constants.UserRoleAffiliate, path: "/api/v1/admin/withdrawals/1/approve", want: 403},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, tc.path, nil)
			req.Header.Set("X-Test-Role", tc.role)
			r.ServeHTTP(w, req)
			if tc.want == 0 {
				if !strings.Contains(w.Body.String(), `"ok":true`) {
					t.Fatalf("expected pass-through, got %s", w.Body.String())
				}
				return
			}
			if code := decodeStatusCode(t, w.Body.Bytes()); code != tc.want {
				t.Fatalf("status_code want %d got %d", tc.want, code)
			}
		})
	}
}

func setupRouterTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return db
}
