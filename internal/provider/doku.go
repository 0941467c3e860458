package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prawira/gotix/internal/clock"
)

const (
	dokuTimestampFormat = "2006-01-02T15:04:05Z"
	dokuSkewTolerance   = 5 * time.Minute

	// Access tokens are refreshed this long before their reported expiry so
	// an in-flight payment call never races token expiration.
	dokuTokenRefreshWindow = 30 * time.Second
)

type DokuConfig struct {
	ClientID  string
	SecretKey string
	BaseURL   string
}

// Doku is the signature-authenticated gateway. Outbound requests carry a
// short-lived B2B access token acquired with an HMAC-signed handshake;
// inbound callbacks are verified by recomputing the signature over the
// inbound timestamp and body digest.
type Doku struct {
	cfg    DokuConfig
	client *http.Client
	clock  clock.Clock

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewDoku(cfg DokuConfig, httpClient *http.Client, clk clock.Clock) *Doku {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Doku{cfg: cfg, client: httpClient, clock: clk}
}

func (d *Doku) Name() string { return "doku" }

func (d *Doku) signTokenRequest(timestamp string) string {
	mac := hmac.New(sha256.New, []byte(d.cfg.SecretKey))
	mac.Write([]byte(d.cfg.ClientID + "|" + timestamp))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (d *Doku) signCallback(timestamp string, body []byte) string {
	digest := sha256.Sum256(body)
	mac := hmac.New(sha256.New, []byte(d.cfg.SecretKey))
	mac.Write([]byte(d.cfg.ClientID + "|" + timestamp + "|" + hex.EncodeToString(digest[:])))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// token returns a cached access token, fetching a fresh one when the cache
// is empty or within the refresh window. The mutex single-flights
// concurrent refreshes; token acquisition never runs while any inventory
// work is in progress.
func (d *Doku) token(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	if d.accessToken != "" && now.Before(d.tokenExpiry.Add(-dokuTokenRefreshWindow)) {
		return d.accessToken, nil
	}

	timestamp := now.UTC().Format(dokuTimestampFormat)
	body, err := json.Marshal(map[string]string{"grantType": "client_credentials"})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.BaseURL+"/authorization/v1/access-token/b2b", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CLIENT-KEY", d.cfg.ClientID)
	req.Header.Set("X-TIMESTAMP", timestamp)
	req.Header.Set("X-SIGNATURE", d.signTokenRequest(timestamp))

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token request: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: token response: %v", ErrTransient, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token request returned %d", ErrTransient, resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string `json:"accessToken"`
		TokenType   string `json:"tokenType"`
		ExpiresIn   int    `json:"expiresIn"`
	}
	if err := json.Unmarshal(respBody, &tokenResp); err != nil {
		return "", fmt.Errorf("%w: token response: %v", ErrTransient, err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("%w: token response missing accessToken", ErrTransient)
	}
	if tokenResp.ExpiresIn <= 0 {
		tokenResp.ExpiresIn = 900
	}

	d.accessToken = tokenResp.AccessToken
	d.tokenExpiry = now.Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	return d.accessToken, nil
}

func (d *Doku) CreatePayment(ctx context.Context, payReq PaymentRequest) (*PaymentIntent, error) {
	accessToken, err := d.token(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]interface{}{
		"order": map[string]interface{}{
			"amount":         payReq.Amount,
			"invoice_number": payReq.OrderID,
			"currency":       "IDR",
			"line_items": []map[string]interface{}{
				{
					"name":     "Event Ticket",
					"price":    payReq.Amount,
					"quantity": 1,
				},
			},
		},
		"payment": map[string]interface{}{
			"payment_due_date":     60,
			"payment_method_types": []string{"CREDIT_CARD", "BANK_TRANSFER", "EWALLET"},
		},
		"customer": map[string]interface{}{
			"id":    payReq.Customer.Email,
			"name":  payReq.Customer.Name,
			"email": payReq.Customer.Email,
			"phone": payReq.Customer.Phone,
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.BaseURL+"/checkout/v1/payment", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: create payment: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: create payment response: %v", ErrTransient, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: create payment returned %d", ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("doku create payment returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var created struct {
		Response struct {
			Order struct {
				InvoiceNumber string `json:"invoice_number"`
			} `json:"order"`
			Payment struct {
				URL        string `json:"url"`
				ExpiredDate string `json:"expired_date"`
			} `json:"payment"`
		} `json:"response"`
	}
	if err := json.Unmarshal(respBody, &created); err != nil {
		return nil, fmt.Errorf("doku create payment: decode response: %v", err)
	}
	if created.Response.Payment.URL == "" {
		return nil, fmt.Errorf("doku create payment: response missing payment url")
	}

	intent := &PaymentIntent{
		RedirectURL:       created.Response.Payment.URL,
		ProviderReference: created.Response.Order.InvoiceNumber,
	}
	if intent.ProviderReference == "" {
		intent.ProviderReference = payReq.OrderID
	}
	if expiry, err := time.Parse(dokuTimestampFormat, created.Response.Payment.ExpiredDate); err == nil {
		intent.ExpiresAt = expiry
	}
	return intent, nil
}

func (d *Doku) GetStatus(ctx context.Context, providerReference string) (string, error) {
	accessToken, err := d.token(ctx)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.cfg.BaseURL+"/checkout/v1/payment/"+providerReference, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: get status: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: get status response: %v", ErrTransient, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: get status returned %d", ErrTransient, resp.StatusCode)
	}

	var statusResp struct {
		Transaction struct {
			Status string `json:"status"`
		} `json:"transaction"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(respBody, &statusResp); err != nil {
		return "", fmt.Errorf("doku get status: decode response: %v", err)
	}
	if statusResp.Transaction.Status != "" {
		return statusResp.Transaction.Status, nil
	}
	return statusResp.Status, nil
}

// AuthenticateCallback recomputes the expected signature from the inbound
// X-Timestamp header and body digest. Missing headers, stale timestamps and
// mismatched signatures are all rejected the same way so the caller never
// learns which check failed.
func (d *Doku) AuthenticateCallback(header http.Header, body []byte) error {
	signature := header.Get("X-Signature")
	timestamp := header.Get("X-Timestamp")
	if signature == "" || timestamp == "" {
		return fmt.Errorf("%w: missing signature headers", ErrBadSignature)
	}

	sentAt, err := time.Parse(dokuTimestampFormat, timestamp)
	if err != nil {
		return fmt.Errorf("%w: unparseable timestamp", ErrBadSignature)
	}
	skew := d.clock.Now().Sub(sentAt)
	if skew < -dokuSkewTolerance || skew > dokuSkewTolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrBadSignature)
	}

	expected := d.signCallback(timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("%w: signature mismatch", ErrBadSignature)
	}
	return nil
}

func (d *Doku) ParseCallback(body []byte) (CallbackEvent, error) {
	var notification struct {
		Order struct {
			InvoiceNumber string `json:"invoice_number"`
		} `json:"order"`
		Transaction struct {
			Status string `json:"status"`
		} `json:"transaction"`
	}
	if err := json.Unmarshal(body, &notification); err != nil {
		return CallbackEvent{}, fmt.Errorf("doku callback: decode body: %v", err)
	}
	if notification.Order.InvoiceNumber == "" {
		return CallbackEvent{}, fmt.Errorf("doku callback: missing invoice_number")
	}
	return CallbackEvent{
		Reference: notification.Order.InvoiceNumber,
		RawStatus: notification.Transaction.Status,
	}, nil
}

func (d *Doku) NormalizeStatus(providerStatus string) Status {
	switch strings.ToUpper(providerStatus) {
	case "SUCCESS":
		return StatusPaid
	case "FAILED":
		return StatusFailed
	case "EXPIRED":
		return StatusExpired
	case "PENDING":
		return StatusPending
	default:
		return StatusUnknown
	}
}
