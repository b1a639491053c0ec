package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/phillip/giftpots-go/apperr"
)

func TestWebhookSignature(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)
	sig := Sign(body, "whsec")

	require.True(t, VerifyWebhookSignature(body, sig, "whsec"))
	require.False(t, VerifyWebhookSignature(body, sig, "other"))
	require.False(t, VerifyWebhookSignature([]byte(`{"event":"payment.failed"}`), sig, "whsec"))
	require.False(t, VerifyWebhookSignature(body, "", "whsec"))
	require.False(t, VerifyWebhookSignature(body, sig, ""))
}

func TestLinkSignature(t *testing.T) {
	cb := LinkCallback{LinkID: "plink_1", ReferenceID: "sess-1", Status: "paid", PaymentID: "pay_1"}
	sig := SignLinkCallback(cb, "keysecret")

	// pipe-joined fields
	require.Equal(t, Sign([]byte("plink_1|sess-1|paid|pay_1"), "keysecret"), sig)
	require.True(t, VerifyLinkSignature(cb, sig, "keysecret"))

	tampered := cb
	tampered.Status = "paid "
	require.False(t, VerifyLinkSignature(tampered, sig, "keysecret"))
}

func TestRazorpayCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "key", user)
		require.Equal(t, "secret", pass)

		var p struct {
			Amount int64             `json:"amount"`
			Notes  map[string]string `json:"notes"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		require.Equal(t, int64(15354), p.Amount)
		require.Equal(t, "sess-1", p.Notes["session_id"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_1","amount":15354,"currency":"INR"}`))
	}))
	defer srv.Close()

	rp := NewRazorpay(RazorpayConfig{KeyID: "key", KeySecret: "secret", BaseURL: srv.URL})
	order, err := rp.CreateOrder(context.Background(), OrderRequest{
		Amount:   15354,
		Currency: CurrencyINR,
		Notes:    map[string]string{"session_id": "sess-1"},
	})
	require.NoError(t, err)
	require.Equal(t, "order_1", order.ID)
	require.Equal(t, int64(15354), order.Amount)
}

func TestRazorpayCreatePaymentLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payment_links", r.URL.Path)

		var p map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		require.Equal(t, "sess-1", p["reference_id"])
		require.Equal(t, "get", p["callback_method"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"plink_1","short_url":"https://rzp.io/l/x","order_id":"order_9"}`))
	}))
	defer srv.Close()

	// a configured /v1 suffix is tolerated
	rp := NewRazorpay(RazorpayConfig{KeyID: "key", KeySecret: "secret", BaseURL: srv.URL + "/v1"})
	link, err := rp.CreatePaymentLink(context.Background(), PaymentLinkRequest{
		Amount:      5000,
		Currency:    CurrencyINR,
		ReferenceID: "sess-1",
		CallbackURL: "https://api.example.com/cb",
	})
	require.NoError(t, err)
	require.Equal(t, "plink_1", link.ID)
	require.Equal(t, "order_9", link.OrderID)
}

func TestRazorpayErrorsAreGatewayErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"bad amount"}}`))
	}))
	defer srv.Close()

	rp := NewRazorpay(RazorpayConfig{BaseURL: srv.URL})
	_, err := rp.CreatePaymentLink(context.Background(), PaymentLinkRequest{Amount: 1, Currency: CurrencyINR})
	require.Error(t, err)
	require.True(t, apperr.Is(err, apperr.KindGateway))
}

func TestRazorpayTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	rp := NewRazorpay(RazorpayConfig{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := rp.CreateOrder(context.Background(), OrderRequest{Amount: 100, Currency: CurrencyINR})
	require.True(t, apperr.Is(err, apperr.KindGateway))
}

func TestRazorpayHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	rp := NewRazorpay(RazorpayConfig{BaseURL: srv.URL, Timeout: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := rp.CreateOrder(ctx, OrderRequest{Amount: 100, Currency: CurrencyINR})
	require.True(t, apperr.Is(err, apperr.KindGateway))
	require.Less(t, time.Since(start), 150*time.Millisecond)
}
