package flutterwave

import (
	"bytes"
	"context"
	"crypto/hmac"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrConfigInvalid          = errors.New("flutterwave config invalid")
	ErrRequestFailed          = errors.New("flutterwave request failed")
	ErrResponseInvalid        = errors.New("flutterwave response invalid")
	ErrSignatureInvalid       = errors.New("flutterwave signature invalid")
	ErrTransactionNotFound    = errors.New("flutterwave transaction not found")
	ErrReferenceMismatch      = errors.New("flutterwave tx_ref mismatch")
	ErrCallbackCancelled      = errors.New("flutterwave checkout cancelled")
	ErrCallbackNotSuccessful  = errors.New("flutterwave checkout not successful")
	ErrCallbackMissingPayload = errors.New("flutterwave callback missing tx_ref")
)

const (
	defaultAPIBaseURL = "https://api.flutterwave.com"
	defaultTimeout    = 12 * time.Second
	defaultCurrency   = "NGN"

	// HeaderVerifHash Webhook 共享密钥请求头
	HeaderVerifHash = "verif-hash"

	EventChargeCompleted = "charge.completed"
	StatusSuccessful     = "successful"
	StatusCompleted      = "completed"
	StatusCancelled      = "cancelled"
	StatusFailed         = "failed"
	StatusPending        = "pending"
)

// Config Flutterwave 网关配置。
type Config struct {
	PublicKey   string
	SecretKey   string
	SecretHash  string
	BaseURL     string
	RedirectURL string
	Currency    string
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Customer 买家信息。
type Customer struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Customizations 托管收银台展示信息。
type Customizations struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Logo        string `json:"logo,omitempty"`
}

// CheckoutInput 创建托管收银台输入。
type CheckoutInput struct {
	Amount         decimal.Decimal
	Currency       string
	TxRef          string
	RedirectURL    string
	Customer       Customer
	Customizations Customizations
	Meta           map[string]string
}

// CheckoutResult 托管收银台结果。
type CheckoutResult struct {
	Link string
	Raw  map[string]interface{}
}

// VerificationResult 交易校验结果（字段均已校验，不直接暴露原始报文结构）。
type VerificationResult struct {
	ID            string
	TxRef         string
	FlwRef        string
	Status        string
	Amount        decimal.Decimal
	ChargedAmount decimal.Decimal
	Currency      string
	PaymentType   string
	CustomerEmail string
	CustomerName  string
	PaidAt        *time.Time
	Raw           map[string]interface{}
}

// Successful 交易是否成功。
func (r *VerificationResult) Successful() bool {
	if r == nil {
		return false
	}
	return isSuccessfulStatus(r.Status)
}

// WebhookResult Webhook 解析结果。
type WebhookResult struct {
	Event string
	VerificationResult
}

// Applicable 是否为需要结算的成功收款事件。
func (r *WebhookResult) Applicable() bool {
	if r == nil {
		return false
	}
	return strings.EqualFold(r.Event, EventChargeCompleted) && r.Successful()
}

// CallbackResult 收银台跳转回调结果。
type CallbackResult struct {
	Status        string
	TxRef         string
	TransactionID string
}

// ValidateConfig 校验配置。
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return fmt.Errorf("%w: secret_key is required", ErrConfigInvalid)
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultAPIBaseURL
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return fmt.Errorf("%w: base_url is invalid", ErrConfigInvalid)
	}
	return nil
}

// InitializeCheckout 创建托管收银台支付链接。
func InitializeCheckout(ctx context.Context, cfg *Config, input CheckoutInput) (*CheckoutResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	txRef := strings.TrimSpace(input.TxRef)
	if txRef == "" {
		return nil, fmt.Errorf("%w: tx_ref is required", ErrConfigInvalid)
	}
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrConfigInvalid)
	}
	if strings.TrimSpace(input.Customer.Email) == "" {
		return nil, fmt.Errorf("%w: customer email is required", ErrConfigInvalid)
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = cfg.currency()
	}
	redirectURL := strings.TrimSpace(input.RedirectURL)
	if redirectURL == "" {
		redirectURL = strings.TrimSpace(cfg.RedirectURL)
	}

	payload := map[string]interface{}{
		"tx_ref":         txRef,
		"amount":         input.Amount.Round(2).StringFixed(2),
		"currency":       currency,
		"customer":       input.Customer,
		"customizations": input.Customizations,
	}
	if redirectURL != "" {
		payload["redirect_url"] = redirectURL
	}
	if len(input.Meta) > 0 {
		payload["meta"] = input.Meta
	}

	body, statusCode, err := doRequest(ctx, cfg, http.MethodPost, "/v3/payments", nil, payload)
	if err != nil {
		return nil, err
	}
	raw, err := decodeRawMap(body)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 || !strings.EqualFold(readString(raw, "status"), "success") {
		return nil, fmt.Errorf("%w: initialize status %d: %s", ErrResponseInvalid, statusCode, readString(raw, "message"))
	}
	data, _ := raw["data"].(map[string]interface{})
	link := readString(data, "link")
	if link == "" {
		return nil, fmt.Errorf("%w: missing checkout link", ErrResponseInvalid)
	}
	return &CheckoutResult{Link: link, Raw: raw}, nil
}

// VerifyTransaction 按网关交易 ID 校验交易，并要求 tx_ref 与本地一致。
func VerifyTransaction(ctx context.Context, cfg *Config, transactionID string, txRef string) (*VerificationResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, fmt.Errorf("%w: transaction_id is required", ErrConfigInvalid)
	}
	path := "/v3/transactions/" + url.PathEscape(transactionID) + "/verify"
	result, err := fetchVerification(ctx, cfg, path, nil)
	if err != nil {
		return nil, err
	}
	if expected := strings.TrimSpace(txRef); expected != "" && result.TxRef != expected {
		return nil, fmt.Errorf("%w: expected %s got %s", ErrReferenceMismatch, expected, result.TxRef)
	}
	return result, nil
}

// VerifyByReference 按商户 tx_ref 查询交易。
func VerifyByReference(ctx context.Context, cfg *Config, txRef string) (*VerificationResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		return nil, fmt.Errorf("%w: tx_ref is required", ErrConfigInvalid)
	}
	query := url.Values{}
	query.Set("tx_ref", txRef)
	result, err := fetchVerification(ctx, cfg, "/v3/transactions/verify_by_reference", query)
	if err != nil {
		return nil, err
	}
	if result.TxRef != txRef {
		return nil, fmt.Errorf("%w: expected %s got %s", ErrReferenceMismatch, txRef, result.TxRef)
	}
	return result, nil
}

// VerifyAndParseWebhook 校验 verif-hash 并解析 Webhook。
func VerifyAndParseWebhook(cfg *Config, headers map[string]string, body []byte) (*WebhookResult, error) {
	if cfg == nil || strings.TrimSpace(cfg.SecretHash) == "" {
		return nil, fmt.Errorf("%w: secret_hash is required", ErrConfigInvalid)
	}
	signature := ""
	for key, value := range headers {
		if strings.EqualFold(strings.TrimSpace(key), HeaderVerifHash) {
			signature = strings.TrimSpace(value)
			break
		}
	}
	if signature == "" {
		return nil, fmt.Errorf("%w: missing %s header", ErrSignatureInvalid, HeaderVerifHash)
	}
	if !hmac.Equal([]byte(signature), []byte(strings.TrimSpace(cfg.SecretHash))) {
		return nil, ErrSignatureInvalid
	}

	raw, err := decodeRawMap(body)
	if err != nil {
		return nil, err
	}
	event := readString(raw, "event")
	data, ok := raw["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: missing data", ErrResponseInvalid)
	}
	parsed, err := parseTransactionData(data)
	if err != nil {
		return nil, err
	}
	parsed.Raw = raw
	return &WebhookResult{Event: event, VerificationResult: *parsed}, nil
}

// ParseCheckoutCallback 解析收银台跳转回调参数。
func ParseCheckoutCallback(query map[string]string) (*CallbackResult, error) {
	result := &CallbackResult{
		Status:        strings.ToLower(strings.TrimSpace(query["status"])),
		TxRef:         strings.TrimSpace(query["tx_ref"]),
		TransactionID: strings.TrimSpace(query["transaction_id"]),
	}
	if result.TxRef == "" {
		return result, ErrCallbackMissingPayload
	}
	switch {
	case result.Status == StatusCancelled:
		return result, ErrCallbackCancelled
	case isSuccessfulStatus(result.Status) && result.TransactionID != "":
		return result, nil
	default:
		return result, ErrCallbackNotSuccessful
	}
}

func fetchVerification(ctx context.Context, cfg *Config, path string, query url.Values) (*VerificationResult, error) {
	body, statusCode, err := doRequest(ctx, cfg, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	if statusCode == http.StatusNotFound {
		return nil, ErrTransactionNotFound
	}
	raw, err := decodeRawMap(body)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 || !strings.EqualFold(readString(raw, "status"), "success") {
		message := readString(raw, "message")
		if strings.Contains(strings.ToLower(message), "no transaction") {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("%w: verify status %d: %s", ErrResponseInvalid, statusCode, message)
	}
	data, ok := raw["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: missing data", ErrResponseInvalid)
	}
	result, err := parseTransactionData(data)
	if err != nil {
		return nil, err
	}
	result.Raw = raw
	return result, nil
}

func parseTransactionData(data map[string]interface{}) (*VerificationResult, error) {
	result := &VerificationResult{
		ID:          readString(data, "id"),
		TxRef:       readString(data, "tx_ref"),
		FlwRef:      readString(data, "flw_ref"),
		Status:      strings.ToLower(readString(data, "status")),
		Currency:    strings.ToUpper(readString(data, "currency")),
		PaymentType: readString(data, "payment_type"),
	}
	if result.TxRef == "" {
		return nil, fmt.Errorf("%w: missing tx_ref", ErrResponseInvalid)
	}
	if result.Status == "" {
		return nil, fmt.Errorf("%w: missing status", ErrResponseInvalid)
	}
	amount, err := readDecimal(data, "amount")
	if err != nil {
		return nil, fmt.Errorf("%w: invalid amount", ErrResponseInvalid)
	}
	result.Amount = amount
	if charged, err := readDecimal(data, "charged_amount"); err == nil {
		result.ChargedAmount = charged
	} else {
		result.ChargedAmount = amount
	}
	if customer, ok := data["customer"].(map[string]interface{}); ok {
		result.CustomerEmail = readString(customer, "email")
		result.CustomerName = readString(customer, "name")
	}
	if createdAt := readString(data, "created_at"); createdAt != "" && isSuccessfulStatus(result.Status) {
		if parsed, err := time.Parse(time.RFC3339, createdAt); err == nil {
			result.PaidAt = &parsed
		}
	}
	return result, nil
}

func isSuccessfulStatus(status string) bool {
	status = strings.ToLower(strings.TrimSpace(status))
	return status == StatusSuccessful || status == StatusCompleted
}

func (c *Config) baseURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return defaultAPIBaseURL
	}
	return base
}

func (c *Config) currency() string {
	currency := strings.ToUpper(strings.TrimSpace(c.Currency))
	if currency == "" {
		return defaultCurrency
	}
	return currency
}

func (c *Config) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func doRequest(ctx context.Context, cfg *Config, method, path string, query url.Values, payload interface{}) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := cfg.baseURL() + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: encode payload failed", ErrRequestFailed)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(cfg.SecretKey))
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := cfg.client().Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response failed", ErrResponseInvalid)
	}
	return body, resp.StatusCode, nil
}

func decodeRawMap(body []byte) (map[string]interface{}, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var raw map[string]interface{}
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}
	return raw, nil
}

func readString(raw map[string]interface{}, key string) string {
	if raw == nil || strings.TrimSpace(key) == "" {
		return ""
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(typed, 10)
	case int:
		return strconv.Itoa(typed)
	default:
		return ""
	}
}

func readDecimal(raw map[string]interface{}, key string) (decimal.Decimal, error) {
	text := readString(raw, key)
	if text == "" {
		return decimal.Zero, fmt.Errorf("missing %s", key)
	}
	return decimal.NewFromString(text)
}
