package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vouh/Course-corner-sub000/internal/reconcile"
)

var ErrMalformedCallback = errors.New("malformed stk callback")

// Callback is the decoded STK result webhook.
type Callback struct {
	MerchantRequestID string
	CheckoutRef       string
	ResultCode        string
	ResultDesc        string
	ReceiptCode       string
	Phone             string
	Amount            decimal.Decimal
}

type callbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string     `json:"MerchantRequestID"`
			CheckoutRequestID string     `json:"CheckoutRequestID"`
			ResultCode        flexString `json:"ResultCode"`
			ResultDesc        string     `json:"ResultDesc"`
			CallbackMetadata  *struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

func ParseCallback(body []byte) (*Callback, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var env callbackEnvelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}

	stk := env.Body.StkCallback
	if stk.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: missing CheckoutRequestID", ErrMalformedCallback)
	}
	if stk.ResultCode == "" {
		return nil, fmt.Errorf("%w: missing ResultCode", ErrMalformedCallback)
	}

	cb := &Callback{
		MerchantRequestID: stk.MerchantRequestID,
		CheckoutRef:       stk.CheckoutRequestID,
		ResultCode:        string(stk.ResultCode),
		ResultDesc:        stk.ResultDesc,
	}
	if stk.CallbackMetadata != nil {
		for _, item := range stk.CallbackMetadata.Item {
			value := metadataString(item.Value)
			switch item.Name {
			case "MpesaReceiptNumber":
				cb.ReceiptCode = NormalizeReceipt(value)
			case "PhoneNumber":
				cb.Phone = value
			case "Amount":
				if amount, err := decimal.NewFromString(value); err == nil {
					cb.Amount = amount
				}
			}
		}
	}
	return cb, nil
}

// Signal classifies the callback and attaches the receipt on success.
func (c Callback) Signal() reconcile.Signal {
	sig := Classify(c.ResultCode, c.ResultDesc)
	if sig.Kind == reconcile.SignalSuccess {
		sig.ReceiptCode = c.ReceiptCode
	}
	return sig
}

// NormalizeReceipt is the canonical form of a receipt code, used both when a
// receipt is recorded and when it is looked up.
func NormalizeReceipt(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func metadataString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// flexString accepts a JSON string or number. Result codes arrive as numbers
// on callbacks and as strings on query replies.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
