package public

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dujiao-next/affiliate-settlement/internal/config"
	"github.com/dujiao-next/affiliate-settlement/internal/constants"
	"github.com/dujiao-next/affiliate-settlement/internal/http/response"
	"github.com/dujiao-next/affiliate-settlement/internal/models"
	"github.com/dujiao-next/affiliate-settlement/internal/provider"
	"github.com/dujiao-next/affiliate-settlement/internal/repository"
	"github.com/dujiao-next/affiliate-settlement/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const testWebhookHash = "hash-handler-test"

func setupPaymentHandler(t *testing.T, name string) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	previous := models.DB
	models.DB = db
	t.Cleanup(func() { models.DB = previous })

	cfg := &config.Config{}
	cfg.Flutterwave = config.FlutterwaveConfig{
		SecretKey:  "FLWSECK_TEST-handler",
		SecretHash: testWebhookHash,
		BaseURL:    "http://127.0.0.1:1",
		Currency:   constants.DefaultCurrency,
	}
	saleRepo := repository.NewSaleRepository(db)
	paymentTxnRepo := repository.NewPaymentTransactionRepository(db)
	linkRepo := repository.NewReferralLinkRepository(db)
	reconcileRepo := repository.NewReconciliationRepository(db)
	wallet := service.NewWalletService(repository.NewWalletRepository(db))
	notifier := service.NewNotificationService(repository.NewNotificationRepository(db), nil, config.NotificationConfig{}, service.NewEmailService(&cfg.Email))
	gateway := service.NewGatewayService(cfg.Flutterwave)

	container := &provider.Container{
		Config:         cfg,
		GatewayService: gateway,
		SettlementService: service.NewSettlementService(saleRepo, paymentTxnRepo, linkRepo, reconcileRepo, wallet, notifier, gateway, nil, service.SettlementOptions{
			PlatformFeeRate: decimal.RequireFromString("0.05"),
		}),
	}
	h := New(container)
	r := gin.New()
	r.POST("/webhook", h.FlutterwaveWebhook)
	r.POST("/verify", h.VerifyPayment)
	r.GET("/config", h.GetPublicConfig)
	return r, db
}

func seedPendingSale(t *testing.T, db *gorm.DB, txRef string) models.Sale {
	t.Helper()
	business := models.User{Email: "biz_" + txRef + "@example.com", Role: constants.UserRoleBusiness, IsVerified: true, Status: constants.UserStatusActive}
	affiliate := models.User{Email: "aff_" + txRef + "@example.com", Role: constants.UserRoleAffiliate, Status: constants.UserStatusActive}
	if err := db.Create(&business).Error; err != nil {
		t.Fatalf("create business failed: %v", err)
	}
	if err := db.Create(&affiliate).Error; err != nil {
		t.Fatalf("create affiliate failed: %v", err)
	}
	product := models.Product{
		BusinessID:     business.ID,
		Name:           "Course",
		Price:          models.NewMoneyFromInt(10000),
		Currency:       constants.DefaultCurrency,
		CommissionRate: decimal.NewFromInt(10),
		IsActive:       true,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	link := models.ReferralLink{ProductID: product.ID, AffiliateID: affiliate.ID, Code: "CODE" + txRef}
	if err := db.Create(&link).Error; err != nil {
		t.Fatalf("create link failed: %v", err)
	}
	sale := models.Sale{
		ProductID:            product.ID,
		ReferralLinkID:       link.ID,
		Amount:               models.NewMoneyFromInt(10000),
		CommissionRate:       decimal.NewFromInt(10),
		CommissionAmount:     models.NewMoneyFromInt(1000),
		Currency:             constants.DefaultCurrency,
		Status:               constants.SaleStatusPending,
		TransactionReference: txRef,
		CustomerEmail:        "buyer@example.com",
	}
	if err := db.Create(&sale).Error; err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	return sale
}

func postWebhook(r *gin.Engine, hash string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if hash != "" {
		req.Header.Set("verif-hash", hash)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response failed: %v body=%s", err, w.Body.String())
	}
	return resp
}

func TestFlutterwaveWebhookStatusCodes(t *testing.T) {
	r, db := setupPaymentHandler(t, "handler_webhook")
	sale := seedPendingSale(t, db, "AFS-H1")
	successBody := `{"event":"charge.completed","data":{"id":501,"tx_ref":"AFS-H1","amount":10000,"currency":"NGN","status":"successful"}}`

	if w := postWebhook(r, "", successBody); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing signature should be 401, got %d", w.Code)
	}
	if w := postWebhook(r, "wrong-hash", successBody); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong signature should be 401, got %d", w.Code)
	}
	if w := postWebhook(r, testWebhookHash, `{"event":`); w.Code != http.StatusBadRequest {
		t.Fatalf("malformed payload should be 400, got %d", w.Code)
	}

	failedBody := `{"event":"charge.completed","data":{"id":501,"tx_ref":"AFS-H1","amount":10000,"currency":"NGN","status":"failed"}}`
	w := postWebhook(r, testWebhookHash, failedBody)
	if w.Code != http.StatusOK {
		t.Fatalf("non applicable event should be acknowledged, got %d", w.Code)
	}

	w = postWebhook(r, testWebhookHash, successBody)
	if w.Code != http.StatusOK {
		t.Fatalf("settlement webhook should be 200, got %d body=%s", w.Code, w.Body.String())
	}
	if resp := decodeResponse(t, w); resp.StatusCode != response.CodeOK {
		t.Fatalf("unexpected business code: %d", resp.StatusCode)
	}
	var stored models.Sale
	if err := db.First(&stored, sale.ID).Error; err != nil {
		t.Fatalf("reload sale failed: %v", err)
	}
	if stored.Status != constants.SaleStatusCompleted {
		t.Fatalf("sale should be completed, got %s", stored.Status)
	}

	if w := postWebhook(r, testWebhookHash, successBody); w.Code != http.StatusOK {
		t.Fatalf("duplicate webhook should be 200, got %d", w.Code)
	}
	var credits int64
	db.Model(&models.WalletTransaction{}).Where("sale_id = ?", sale.ID).Count(&credits)
	if credits != 2 {
		t.Fatalf("duplicate webhook must not credit twice, got %d", credits)
	}
}

func TestFlutterwaveWebhookAcknowledgesUnderpaidCharge(t *testing.T) {
	r, db := setupPaymentHandler(t, "handler_webhook_underpaid")
	sale := seedPendingSale(t, db, "AFS-H3")

	body := `{"event":"charge.completed","data":{"id":503,"tx_ref":"AFS-H3","amount":1,"currency":"NGN","status":"successful"}}`
	w := postWebhook(r, testWebhookHash, body)
	if w.Code != http.StatusOK {
		t.Fatalf("underpaid webhook should be acknowledged, got %d body=%s", w.Code, w.Body.String())
	}
	var stored models.Sale
	if err := db.First(&stored, sale.ID).Error; err != nil {
		t.Fatalf("reload sale failed: %v", err)
	}
	if stored.Status != constants.SaleStatusPending {
		t.Fatalf("underpaid sale should remain pending, got %s", stored.Status)
	}
	var task models.ReconciliationTask
	if err := db.Where("sale_id = ? AND step = ?", sale.ID, constants.ReconcileStepPaymentMismatch).First(&task).Error; err != nil {
		t.Fatalf("payment mismatch task missing: %v", err)
	}
	if task.Status != constants.ReconcileStatusManual {
		t.Fatalf("payment mismatch task should be manual, got %s", task.Status)
	}
}

func TestFlutterwaveWebhookInternalFailureAsksForRetry(t *testing.T) {
	r, db := setupPaymentHandler(t, "handler_webhook_down")
	seedPendingSale(t, db, "AFS-H2")
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	_ = sqlDB.Close()

	body := `{"event":"charge.completed","data":{"id":502,"tx_ref":"AFS-H2","amount":10000,"currency":"NGN","status":"successful"}}`
	if w := postWebhook(r, testWebhookHash, body); w.Code != http.StatusInternalServerError {
		t.Fatalf("storage failure should be 500, got %d", w.Code)
	}
}

func TestVerifyPaymentErrors(t *testing.T) {
	r, _ := setupPaymentHandler(t, "handler_verify")

	req := httptest.NewRequest(http.MethodPost, "/verify", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if resp := decodeResponse(t, w); resp.StatusCode != response.CodeBadRequest {
		t.Fatalf("missing fields should be 400, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodPost, "/verify", bytes.NewBufferString(`{"transaction_id":"1","tx_ref":"AFS-NONE"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if resp := decodeResponse(t, w); resp.StatusCode != response.CodeNotFound {
		t.Fatalf("unknown sale should be 404, got %d", resp.StatusCode)
	}
}

func TestGetPublicConfigExposesOnlyPublicKey(t *testing.T) {
	r, _ := setupPaymentHandler(t, "handler_config")
	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if bytes.Contains(w.Body.Bytes(), []byte("FLWSECK")) || bytes.Contains(w.Body.Bytes(), []byte(testWebhookHash)) {
		t.Fatalf("public config leaked a secret: %s", w.Body.String())
	}
}
