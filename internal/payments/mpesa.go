package payments

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/diagnosis/campus-tickets/internal/domain"
	"github.com/diagnosis/campus-tickets/pkg/config"
	"github.com/diagnosis/campus-tickets/pkg/logger"
	"github.com/google/go-querystring/query"
)

var nairobi = time.FixedZone("EAT", 3*60*60)

// Mpesa starts Lipa Na M-Pesa Online (STK push) payments through Daraja.
type Mpesa struct {
	cfg    config.MpesaConfig
	client *http.Client
	now    func() time.Time
}

func NewMpesa(cfg config.MpesaConfig, client *http.Client) *Mpesa {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Mpesa{cfg: cfg, client: client, now: time.Now}
}

func (m *Mpesa) Name() string { return ProviderMpesa }

type tokenQuery struct {
	GrantType string `url:"grant_type"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

func (m *Mpesa) token(ctx context.Context) (string, error) {
	v, err := query.Values(tokenQuery{GrantType: "client_credentials"})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.BaseURL+"/oauth/v1/generate?"+v.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(m.cfg.ConsumerKey, m.cfg.ConsumerSecret)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("token request: status %d: %s", resp.StatusCode, body)
	}

	var out tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("empty access token")
	}
	return out.AccessToken, nil
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
	ErrorCode           string `json:"errorCode"`
	ErrorMessage        string `json:"errorMessage"`
}

// Password is base64(shortcode + passkey + timestamp).
func (m *Mpesa) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(m.cfg.ShortCode + m.cfg.Passkey + timestamp))
}

// Authorize sends an STK push prompt to req.Phone. The returned
// TransactionID is the CheckoutRequestID echoed by the callback.
func (m *Mpesa) Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
	token, err := m.token(ctx)
	if err != nil {
		return nil, domain.E(domain.KindPaymentFailed, "could not reach the payment provider", err)
	}

	ts := m.now().In(nairobi).Format("20060102150405")
	body, err := json.Marshal(stkPushRequest{
		BusinessShortCode: m.cfg.ShortCode,
		Password:          m.password(ts),
		Timestamp:         ts,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            req.Amount,
		PartyA:            req.Phone,
		PartyB:            m.cfg.ShortCode,
		PhoneNumber:       req.Phone,
		CallBackURL:       m.cfg.CallbackURL,
		AccountReference:  truncate(req.Reference, 12),
		TransactionDesc:   truncate(req.Description, 13),
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, domain.E(domain.KindPaymentFailed, "could not reach the payment provider", err)
	}
	defer resp.Body.Close()

	var out stkPushResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return nil, domain.E(domain.KindPaymentFailed, "unexpected payment provider response", err)
	}
	if resp.StatusCode != http.StatusOK || out.ResponseCode != "0" {
		logger.WarnContext(ctx, "STK push rejected",
			"status", resp.StatusCode,
			"response_code", out.ResponseCode,
			"error_code", out.ErrorCode,
			"error", out.ErrorMessage,
		)
		return nil, domain.E(domain.KindPaymentFailed, "payment request was rejected", nil)
	}

	return &Authorization{
		TransactionID:   out.CheckoutRequestID,
		CustomerMessage: out.CustomerMessage,
	}, nil
}

type stkCallbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  *struct {
				Item []struct {
					Name  string          `json:"Name"`
					Value json.RawMessage `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ParseMpesaCallback reads the body Daraja posts to the callback URL.
// ResultCode 0 is a successful payment; anything else was cancelled or
// failed on the handset.
func ParseMpesaCallback(body []byte) (*domain.PaymentResult, error) {
	var env stkCallbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, domain.E(domain.KindValidation, "invalid callback body", err)
	}
	cb := env.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return nil, domain.Validation("callback is missing CheckoutRequestID")
	}

	res := &domain.PaymentResult{
		Provider:      ProviderMpesa,
		TransactionID: cb.CheckoutRequestID,
		Success:       cb.ResultCode == 0,
		ResultCode:    cb.ResultCode,
		ResultDesc:    cb.ResultDesc,
	}
	if cb.CallbackMetadata == nil {
		return res, nil
	}
	for _, item := range cb.CallbackMetadata.Item {
		val := metaString(item.Value)
		switch item.Name {
		case "Amount":
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				res.Amount = int64(f)
			}
		case "MpesaReceiptNumber":
			res.Receipt = val
		case "PhoneNumber":
			res.Phone = val
		}
	}
	return res, nil
}

// metaString returns a metadata value as text whether Daraja sent it as a
// JSON string or number.
func metaString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
