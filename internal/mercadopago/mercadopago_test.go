package mercadopago

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/lotecorto/storefront/internal/config"
	"github.com/lotecorto/storefront/internal/constants"

	"github.com/shopspring/decimal"
)

func TestParseNotification(t *testing.T) {
	cases := []struct {
		name   string
		query  url.Values
		body   string
		topic  string
		dataID string
		action string
	}{
		{
			name:   "webhook json",
			body:   `{"type":"payment","action":"payment.updated","live_mode":true,"data":{"id":"123456"}}`,
			topic:  "payment",
			dataID: "123456",
			action: "payment.updated",
		},
		{
			name:   "webhook numeric id",
			body:   `{"type":"payment","action":"payment.created","data":{"id":98765}}`,
			topic:  "payment",
			dataID: "98765",
			action: "payment.created",
		},
		{
			name:   "ipn query",
			query:  url.Values{"topic": {"payment"}, "id": {"555"}},
			topic:  "payment",
			dataID: "555",
			action: "payment",
		},
		{
			name:   "webhook query only",
			query:  url.Values{"type": {"payment"}, "data.id": {"777"}},
			topic:  "payment",
			dataID: "777",
			action: "payment",
		},
		{
			name:   "feed resource",
			body:   `{"topic":"merchant_order","resource":"https://api.mercadopago.com/merchant_orders/42"}`,
			topic:  "merchant_order",
			dataID: "42",
			action: "merchant_order",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n, err := ParseNotification(tc.query, []byte(tc.body))
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if n.Topic != tc.topic || n.DataID != tc.dataID || n.Action != tc.action {
				t.Fatalf("unexpected notification %+v", n)
			}
		})
	}
}

func TestParseNotificationInvalid(t *testing.T) {
	if _, err := ParseNotification(nil, []byte(`not-json`)); !errors.Is(err, ErrNotificationInvalid) {
		t.Fatalf("want ErrNotificationInvalid got %v", err)
	}
	if _, err := ParseNotification(url.Values{"topic": {"payment"}}, nil); !errors.Is(err, ErrNotificationInvalid) {
		t.Fatalf("missing id want ErrNotificationInvalid got %v", err)
	}
	if _, err := ParseNotification(nil, nil); !errors.Is(err, ErrNotificationInvalid) {
		t.Fatalf("empty want ErrNotificationInvalid got %v", err)
	}
}

func TestVerifySignature(t *testing.T) {
	secret := "whsec"
	digest := Sign(secret, "req-9", "123456", "1700000000")
	header := "ts=1700000000,v1=" + digest

	if err := VerifySignature(secret, header, "req-9", "123456"); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := VerifySignature(secret, header, "req-9", "999"); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("tampered data id want ErrSignatureInvalid got %v", err)
	}
	if err := VerifySignature(secret, "v1="+digest, "req-9", "123456"); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("missing ts want ErrSignatureInvalid got %v", err)
	}
	if err := VerifySignature("", "", "", "123456"); err != nil {
		t.Fatalf("empty secret should skip verification: %v", err)
	}
}

func TestToPaymentStatus(t *testing.T) {
	cases := map[string]string{
		"approved":     constants.PaymentStatusAccepted,
		"authorized":   constants.PaymentStatusAccepted,
		"in_process":   constants.PaymentStatusPending,
		"pending":      constants.PaymentStatusPending,
		"rejected":     constants.PaymentStatusRejected,
		"cancelled":    constants.PaymentStatusRejected,
		"charged_back": constants.PaymentStatusRejected,
	}
	for raw, want := range cases {
		got, ok := ToPaymentStatus(raw)
		if !ok || got != want {
			t.Fatalf("status %s want %s got %s", raw, want, got)
		}
	}
	if _, ok := ToPaymentStatus("mystery"); ok {
		t.Fatalf("unknown status should not map")
	}
}

func TestCreatePreference(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/checkout/preferences" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer APP_USR-1" {
			t.Errorf("access token missing")
		}
		if r.Header.Get("X-Idempotency-Key") == "" {
			t.Errorf("idempotency key missing")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"id":"pref-1","init_point":"https://mp/checkout","sandbox_init_point":"https://sandbox/checkout"}`)
	}))
	defer srv.Close()

	client := NewClient(config.MercadoPagoConfig{
		BaseURL:         srv.URL,
		AccessToken:     "APP_USR-1",
		NotificationURL: "https://shop.example/api/mercadopago/pagos",
		SuccessURL:      "https://shop.example/ok",
		Sandbox:         true,
	}, srv.Client())

	pref, err := client.CreatePreference(context.Background(), PreferenceInput{
		OrderID:   15,
		PaymentID: 900,
		Items: []PreferenceItem{
			{ID: "1", Title: "Yerba", Quantity: 2, UnitPrice: decimal.RequireFromString("750.255")},
		},
	})
	if err != nil {
		t.Fatalf("create preference failed: %v", err)
	}
	if pref.ID != "pref-1" || pref.RedirectURL != "https://sandbox/checkout" {
		t.Fatalf("unexpected preference %+v", pref)
	}
	if got["external_reference"] != "15" || got["notification_url"] != "https://shop.example/api/mercadopago/pagos" {
		t.Fatalf("unexpected payload %v", got)
	}
	items := got["items"].([]interface{})
	item := items[0].(map[string]interface{})
	if item["unit_price"] != 750.26 || item["currency_id"] != "ARS" {
		t.Fatalf("unexpected item %v", item)
	}
	metadata := got["metadata"].(map[string]interface{})
	if metadata["payment_id"] != float64(900) {
		t.Fatalf("payment id not in metadata: %v", metadata)
	}
	if got["auto_return"] != "approved" {
		t.Fatalf("auto_return expected with success url")
	}
}

func TestCreatePreferenceRequiresToken(t *testing.T) {
	client := NewClient(config.MercadoPagoConfig{}, nil)
	_, err := client.CreatePreference(context.Background(), PreferenceInput{OrderID: 1, Items: []PreferenceItem{{Title: "x", Quantity: 1}}})
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("want ErrConfigInvalid got %v", err)
	}
}

func TestGetPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payments/123456" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"id":123456,"status":"approved","status_detail":"accredited","external_reference":"15","metadata":{"order_id":15,"payment_id":900},"transaction_amount":1500.5,"currency_id":"ARS"}`)
	}))
	defer srv.Close()

	client := NewClient(config.MercadoPagoConfig{BaseURL: srv.URL, AccessToken: "t"}, srv.Client())
	info, err := client.GetPayment(context.Background(), "123456")
	if err != nil {
		t.Fatalf("get payment failed: %v", err)
	}
	if info.ID.String() != "123456" || info.Status != "approved" {
		t.Fatalf("unexpected payment %+v", info)
	}
	if info.OrderID() != 15 || info.PaymentID() != 900 {
		t.Fatalf("ids not resolved: order=%d payment=%d", info.OrderID(), info.PaymentID())
	}
	if !info.TransactionAmount.Equal(decimal.RequireFromString("1500.5")) {
		t.Fatalf("amount mismatch %s", info.TransactionAmount)
	}
}

func TestGetPaymentErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"Payment not found"}`)
	}))
	defer srv.Close()

	client := NewClient(config.MercadoPagoConfig{BaseURL: srv.URL, AccessToken: "t"}, srv.Client())
	if _, err := client.GetPayment(context.Background(), "1"); !errors.Is(err, ErrResponseInvalid) {
		t.Fatalf("want ErrResponseInvalid got %v", err)
	}
}
