package provider

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	xendit "github.com/xendit/xendit-go/v6"
	"github.com/xendit/xendit-go/v6/invoice"
)

type XenditConfig struct {
	SecretKey     string
	CallbackToken string
	SuccessURL    string
	FailureURL    string
}

// Xendit is the basic-auth gateway. Payment intents go through the official
// invoice API with the order's public id as external_id; callbacks are
// trusted only when they carry the pre-shared callback token.
type Xendit struct {
	cfg    XenditConfig
	client *xendit.APIClient
}

func NewXendit(cfg XenditConfig, client *xendit.APIClient) *Xendit {
	if client == nil {
		client = xendit.NewClient(cfg.SecretKey)
	}
	return &Xendit{cfg: cfg, client: client}
}

func (x *Xendit) Name() string { return "xendit" }

func (x *Xendit) CreatePayment(ctx context.Context, payReq PaymentRequest) (*PaymentIntent, error) {
	req := *invoice.NewCreateInvoiceRequest(payReq.OrderID, float64(payReq.Amount))
	req.SetDescription(fmt.Sprintf("Payment for order %s", payReq.OrderID))

	customer := *invoice.NewCustomerObject()
	customer.SetGivenNames(payReq.Customer.Name)
	customer.SetEmail(payReq.Customer.Email)
	customer.SetMobileNumber(payReq.Customer.Phone)
	req.SetCustomer(customer)

	if x.cfg.SuccessURL != "" {
		req.SetSuccessRedirectUrl(x.cfg.SuccessURL)
	}
	if x.cfg.FailureURL != "" {
		req.SetFailureRedirectUrl(x.cfg.FailureURL)
	}

	inv, _, errX := x.client.InvoiceApi.CreateInvoice(ctx).CreateInvoiceRequest(req).Execute()
	if errX != nil {
		return nil, fmt.Errorf("%w: create invoice: %s", ErrTransient, errX.Error())
	}

	return &PaymentIntent{
		RedirectURL:       inv.GetInvoiceUrl(),
		ProviderReference: inv.GetExternalId(),
		ExpiresAt:         inv.GetExpiryDate(),
	}, nil
}

func (x *Xendit) GetStatus(ctx context.Context, providerReference string) (string, error) {
	invoices, _, errX := x.client.InvoiceApi.GetInvoices(ctx).ExternalId(providerReference).Execute()
	if errX != nil {
		return "", fmt.Errorf("%w: get invoices: %s", ErrTransient, errX.Error())
	}
	if len(invoices) == 0 {
		return "", fmt.Errorf("xendit: no invoice for reference %s", providerReference)
	}
	return invoices[0].GetStatus().String(), nil
}

func (x *Xendit) AuthenticateCallback(header http.Header, body []byte) error {
	token := header.Get("X-Callback-Token")
	if token == "" || x.cfg.CallbackToken == "" {
		return fmt.Errorf("%w: missing callback token", ErrBadSignature)
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(x.cfg.CallbackToken)) != 1 {
		return fmt.Errorf("%w: callback token mismatch", ErrBadSignature)
	}
	return nil
}

func (x *Xendit) ParseCallback(body []byte) (CallbackEvent, error) {
	var notification struct {
		ExternalID string `json:"external_id"`
		Status     string `json:"status"`
	}
	if err := json.Unmarshal(body, &notification); err != nil {
		return CallbackEvent{}, fmt.Errorf("xendit callback: decode body: %v", err)
	}
	if notification.ExternalID == "" {
		return CallbackEvent{}, fmt.Errorf("xendit callback: missing external_id")
	}
	return CallbackEvent{
		Reference: notification.ExternalID,
		RawStatus: notification.Status,
	}, nil
}

func (x *Xendit) NormalizeStatus(providerStatus string) Status {
	switch strings.ToUpper(providerStatus) {
	case "PAID", "SETTLED":
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
