package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/vouh/Course-corner-sub000/internal/reconcile"
)

const (
	tokenPath = "/oauth/v1/generate"
	pushPath  = "/mpesa/stkpush/v1/processrequest"
	queryPath = "/mpesa/stkpushquery/v1/query"

	maxAccountReference = 12
	maxDescription      = 13
)

type DarajaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	Timeout        time.Duration
}

// Daraja talks to the M-Pesa Express (STK push) API.
type Daraja struct {
	http *resty.Client
	cfg  DarajaConfig
	now  func() time.Time
	loc  *time.Location

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewDaraja(cfg DarajaConfig) *Daraja {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	loc, err := time.LoadLocation("Africa/Nairobi")
	if err != nil {
		loc = time.FixedZone("EAT", 3*60*60)
	}
	return &Daraja{
		http: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		cfg: cfg,
		now: time.Now,
		loc: loc,
	}
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

type errorResponse struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

type pushPayload struct {
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

type pushReply struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type queryPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type queryReply struct {
	ResponseCode        string     `json:"ResponseCode"`
	ResponseDescription string     `json:"ResponseDescription"`
	CheckoutRequestID   string     `json:"CheckoutRequestID"`
	ResultCode          flexString `json:"ResultCode"`
	ResultDesc          string     `json:"ResultDesc"`
}

func (d *Daraja) Push(ctx context.Context, req PushRequest) (*PushResponse, error) {
	token, err := d.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	password, timestamp := d.password()
	payload := pushPayload{
		BusinessShortCode: d.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            req.Amount.Ceil().IntPart(),
		PartyA:            req.Phone,
		PartyB:            d.cfg.ShortCode,
		PhoneNumber:       req.Phone,
		CallBackURL:       d.cfg.CallbackURL,
		AccountReference:  truncate(req.Reference, maxAccountReference),
		TransactionDesc:   truncate(req.Description, maxDescription),
	}

	var reply pushReply
	var failure errorResponse
	resp, err := d.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(payload).
		SetResult(&reply).
		SetError(&failure).
		Post(pushPath)
	if err != nil {
		return nil, fmt.Errorf("stk push: %w: %w", reconcile.ErrProviderUnavailable, err)
	}
	if resp.StatusCode() >= http.StatusInternalServerError && failure.ErrorCode == "" {
		return nil, fmt.Errorf("stk push: %w: status %d", reconcile.ErrProviderUnavailable, resp.StatusCode())
	}
	if resp.IsError() {
		return nil, &Error{StatusCode: resp.StatusCode(), Code: failure.ErrorCode, Message: failure.ErrorMessage}
	}
	if reply.ResponseCode != "0" || reply.CheckoutRequestID == "" {
		return nil, &Error{StatusCode: resp.StatusCode(), Code: reply.ResponseCode, Message: reply.ResponseDescription}
	}

	return &PushResponse{
		CheckoutRef:       reply.CheckoutRequestID,
		MerchantRequestID: reply.MerchantRequestID,
		CustomerMessage:   reply.CustomerMessage,
	}, nil
}

// Query asks for the current state of a push. A pending push is reported by
// the provider as an error payload; it is returned here as a result so the
// caller can classify it instead of treating it as a failure.
func (d *Daraja) Query(ctx context.Context, checkoutRef string) (*QueryResult, error) {
	token, err := d.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	password, timestamp := d.password()
	var reply queryReply
	var failure errorResponse
	resp, err := d.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(queryPayload{
			BusinessShortCode: d.cfg.ShortCode,
			Password:          password,
			Timestamp:         timestamp,
			CheckoutRequestID: checkoutRef,
		}).
		SetResult(&reply).
		SetError(&failure).
		Post(queryPath)
	if err != nil {
		return nil, fmt.Errorf("stk query: %w: %w", reconcile.ErrProviderUnavailable, err)
	}
	if resp.IsError() {
		if failure.ErrorCode != "" {
			return &QueryResult{Code: failure.ErrorCode, Description: failure.ErrorMessage}, nil
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return nil, fmt.Errorf("stk query: %w: status %d", reconcile.ErrProviderUnavailable, resp.StatusCode())
		}
		return nil, &Error{StatusCode: resp.StatusCode(), Message: string(resp.Body())}
	}

	return &QueryResult{Code: string(reply.ResultCode), Description: reply.ResultDesc}, nil
}

func (d *Daraja) accessToken(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.token != "" && d.now().Before(d.tokenExpiry) {
		return d.token, nil
	}

	var reply tokenResponse
	resp, err := d.http.R().
		SetContext(ctx).
		SetBasicAuth(d.cfg.ConsumerKey, d.cfg.ConsumerSecret).
		SetQueryParam("grant_type", "client_credentials").
		SetResult(&reply).
		Get(tokenPath)
	if err != nil {
		return "", fmt.Errorf("oauth token: %w: %w", reconcile.ErrProviderUnavailable, err)
	}
	if resp.IsError() || reply.AccessToken == "" {
		return "", fmt.Errorf("oauth token: %w: status %d", reconcile.ErrProviderUnavailable, resp.StatusCode())
	}

	ttl, err := reply.ExpiresIn.Int64()
	if err != nil || ttl <= 0 {
		ttl = 3599
	}
	d.token = reply.AccessToken
	// Refresh a minute early so a token never expires mid-request.
	d.tokenExpiry = d.now().Add(time.Duration(ttl)*time.Second - time.Minute)
	return d.token, nil
}

func (d *Daraja) password() (string, string) {
	timestamp := d.now().In(d.loc).Format("20060102150405")
	raw := d.cfg.ShortCode + d.cfg.Passkey + timestamp
	return base64.StdEncoding.EncodeToString([]byte(raw)), timestamp
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
