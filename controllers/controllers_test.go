package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/phillip/giftpots-go/apperr"
	"github.com/phillip/giftpots-go/config"
	"github.com/phillip/giftpots-go/contributions"
	"github.com/phillip/giftpots-go/gateway"
	"github.com/phillip/giftpots-go/middleware"
	"github.com/phillip/giftpots-go/models"
	"github.com/phillip/giftpots-go/ratelimit"
	"github.com/phillip/giftpots-go/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	webhookSecret = "whsec_test"
	keySecret     = "key_secret_test"
)

type fakeGateway struct {
	orders int
	err    error
}

func (g *fakeGateway) CreateOrder(_ context.Context, req gateway.OrderRequest) (*gateway.Order, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.orders++
	return &gateway.Order{ID: "order_test", Amount: req.Amount, Currency: req.Currency}, nil
}

func (g *fakeGateway) CreatePaymentLink(_ context.Context, req gateway.PaymentLinkRequest) (*gateway.PaymentLink, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &gateway.PaymentLink{ID: "plink_test", ShortURL: "https://rzp.io/l/test", OrderID: "order_link"}, nil
}

type env struct {
	cfg  *config.Config
	svc  *contributions.Service
	repo *store.Repo
	gw   *fakeGateway
}

func newEnv(t *testing.T) *env {
	t.Helper()
	repo := store.NewRepo(store.NewMemoryStore())
	gw := &fakeGateway{}
	cfg := &config.Config{
		FrontendURL:   "https://gifts.example.com",
		AdminUsername: "admin",
		AdminPassword: "s3cret",
		JWTSecret:     "jwt-secret",
		JWTTTL:        time.Hour,
		UPIID:         "couple@upi",
		UPIName:       "The Couple",
	}
	svc := contributions.NewService(repo, gw, contributions.Options{
		KeyID:         "rzp_test_key",
		KeySecret:     keySecret,
		WebhookSecret: webhookSecret,
		AppURL:        "https://api.example.com",
	})
	return &env{cfg: cfg, svc: svc, repo: repo, gw: gw}
}

func (e *env) pot(t *testing.T, slug string) {
	t.Helper()
	require.NoError(t, e.repo.InsertPot(context.Background(), &models.Pot{
		ID:        "pot-" + slug,
		Title:     "Pot " + slug,
		Slug:      slug,
		IsActive:  true,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}))
}

func (e *env) session(t *testing.T, amount int64) string {
	t.Helper()
	q, err := e.svc.CreateOrReplaceSession(context.Background(), contributions.SessionRequest{
		Donor:       contributions.Donor{Name: "Asha", Email: "asha@example.com", Phone: "+919800000000"},
		Allocations: []contributions.AllocationInput{{PotID: "pot-home", Amount: amount}},
	})
	require.NoError(t, err)
	return q.SessionID
}

func do(r http.Handler, method, path string, body interface{}, header http.Header) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case []byte:
		buf.Write(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{apperr.Validation("name is required"), http.StatusBadRequest},
		{apperr.NotFound("session"), http.StatusNotFound},
		{apperr.InvalidState("session is already paid", models.StatusPaid), http.StatusConflict},
		{apperr.Inconsistent("allocations do not add up"), http.StatusConflict},
		{apperr.InvalidSignature(), http.StatusBadRequest},
		{apperr.RateLimited(), http.StatusTooManyRequests},
		{apperr.Gateway(errors.New("boom"), "create order"), http.StatusBadGateway},
		{apperr.StoreUnavailable(errors.New("down"), "ping"), http.StatusServiceUnavailable},
		{apperr.Store(errors.New("dup"), "insert"), http.StatusBadGateway},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		r := gin.New()
		err := tc.err
		r.GET("/x", func(c *gin.Context) { respondError(c, err) })
		w := do(r, http.MethodGet, "/x", nil, nil)
		require.Equal(t, tc.code, w.Code, err.Error())
	}

	r := gin.New()
	r.GET("/x", func(c *gin.Context) { respondError(c, apperr.InvalidState("session is already paid", models.StatusPaid)) })
	body := decode(t, do(r, http.MethodGet, "/x", nil, nil))
	require.Equal(t, models.StatusPaid, body["status"])

	// Downstream details never leak.
	r = gin.New()
	r.GET("/x", func(c *gin.Context) { respondError(c, apperr.Gateway(errors.New("secret upstream detail"), "create order")) })
	require.NotContains(t, do(r, http.MethodGet, "/x", nil, nil).Body.String(), "secret upstream detail")
}

func TestRateLimitedRequestsUseErrorBody(t *testing.T) {
	r := gin.New()
	r.POST("/x", middleware.RateLimit(ratelimit.NewSlidingWindow(1, time.Minute), RespondError), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	require.Equal(t, http.StatusNoContent, do(r, http.MethodPost, "/x", nil, nil).Code)
	w := do(r, http.MethodPost, "/x", nil, nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "rate limit exceeded, try again later", decode(t, w)["error"])
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	e := newEnv(t)
	e.pot(t, "home")
	r := gin.New()
	r.POST("/session", CreateOrReplaceSession(e.svc))
	r.GET("/session/:id", GetSession(e.svc))
	r.POST("/order", CreateOrder(e.svc))

	w := do(r, http.MethodPost, "/session", gin.H{
		"donor_name": "Asha", "donor_email": "asha@example.com", "donor_phone": "+919800000000",
		"allocations": []gin.H{{"pot_id": "pot-home", "amount_paise": 10000}},
		"cover_fees":  true,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	quote := decode(t, w)
	require.EqualValues(t, 10000, quote["total_amount"])
	require.EqualValues(t, 236, quote["fee_amount"])
	require.EqualValues(t, 10236, quote["grand_total"])
	id := quote["session_id"].(string)

	sess, err := e.repo.Session(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "Asha", sess.DonorName)
	require.Equal(t, "asha@example.com", sess.DonorEmail)
	require.Equal(t, "+919800000000", sess.DonorPhone)

	w = do(r, http.MethodPost, "/session", gin.H{"donor_name": "Asha", "allocations": []gin.H{{"pot_id": "pot-home", "amount_paise": 1}}}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/order", gin.H{"session_id": id}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, 1, e.gw.orders)

	w = do(r, http.MethodGet, "/session/"+id, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, models.StatusPending, decode(t, w)["status"])

	// Second order on a pending session conflicts.
	w = do(r, http.MethodPost, "/order", gin.H{"session_id": id}, nil)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, models.StatusPending, decode(t, w)["status"])

	require.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/session/missing", nil, nil).Code)
}

func TestCreateOrderGatewayFailure(t *testing.T) {
	e := newEnv(t)
	e.pot(t, "home")
	id := e.session(t, 5000)
	e.gw.err = apperr.Gateway(errors.New("timeout"), "create order")

	r := gin.New()
	r.POST("/order", CreateOrder(e.svc))
	require.Equal(t, http.StatusBadGateway, do(r, http.MethodPost, "/order", gin.H{"session_id": id}, nil).Code)

	sess, err := e.repo.Session(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, models.StatusCreated, sess.Status)
}

func TestRazorpayWebhook(t *testing.T) {
	e := newEnv(t)
	e.pot(t, "home")
	id := e.session(t, 5000)

	r := gin.New()
	r.POST("/order", CreateOrder(e.svc))
	r.POST("/webhook", RazorpayWebhook(e.svc))
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/order", gin.H{"session_id": id}, nil).Code)

	body := []byte(`{"entity":"event","event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_test","amount":5000,"status":"captured"}}}}`)
	sig := gateway.Sign(body, webhookSecret)

	w := do(r, http.MethodPost, "/webhook", body, http.Header{
		gateway.HeaderSignature: {"deadbeef"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	events, err := e.repo.WebhookEvents(context.Background(), store.Query{})
	require.NoError(t, err)
	require.Empty(t, events)

	w = do(r, http.MethodPost, "/webhook", body, http.Header{
		gateway.HeaderSignature: {sig},
		gateway.HeaderEventID:   {"evt_1"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, contributions.WebhookOK, decode(t, w)["status"])

	w = do(r, http.MethodPost, "/webhook", body, http.Header{
		gateway.HeaderSignature: {sig},
		gateway.HeaderEventID:   {"evt_2"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, contributions.WebhookAlreadyProcessed, decode(t, w)["status"])

	sess, err := e.repo.Session(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, models.StatusPaid, sess.Status)
	require.Equal(t, "pay_1", sess.GatewayPaymentID)
}

func TestPaymentLinkCallbackRedirects(t *testing.T) {
	e := newEnv(t)
	e.pot(t, "home")

	r := gin.New()
	r.GET("/callback", PaymentLinkCallback(e.cfg, e.svc))

	callback := func(id string, cb gateway.LinkCallback, sig string) *url.URL {
		q := url.Values{}
		q.Set("session_id", id)
		q.Set("razorpay_payment_link_id", cb.LinkID)
		q.Set("razorpay_payment_link_reference_id", cb.ReferenceID)
		q.Set("razorpay_payment_link_status", cb.Status)
		q.Set("razorpay_payment_id", cb.PaymentID)
		q.Set("razorpay_signature", sig)
		w := do(r, http.MethodGet, "/callback?"+q.Encode(), nil, nil)
		require.Equal(t, http.StatusSeeOther, w.Code)
		loc, err := url.Parse(w.Header().Get("Location"))
		require.NoError(t, err)
		require.Equal(t, "/thank-you", loc.Path)
		require.True(t, strings.HasPrefix(loc.String(), e.cfg.FrontendURL))
		return loc
	}

	t.Run("tampered", func(t *testing.T) {
		id := e.session(t, 3000)
		cb := gateway.LinkCallback{LinkID: "plink_1", ReferenceID: id, Status: "paid", PaymentID: "pay_a"}
		sig := gateway.SignLinkCallback(cb, keySecret)
		cb.PaymentID = "pay_forged"

		loc := callback(id, cb, sig)
		require.Equal(t, "failed", loc.Query().Get("payment"))
		require.Equal(t, id, loc.Query().Get("session"))

		sess, err := e.repo.Session(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, models.StatusCreated, sess.Status)
	})

	t.Run("swapped session", func(t *testing.T) {
		small := e.session(t, 100)
		big := e.session(t, 500000)
		cb := gateway.LinkCallback{LinkID: "plink_s", ReferenceID: small, Status: "paid", PaymentID: "pay_s"}

		loc := callback(big, cb, gateway.SignLinkCallback(cb, keySecret))
		require.Equal(t, "failed", loc.Query().Get("payment"))

		for _, id := range []string{small, big} {
			sess, err := e.repo.Session(context.Background(), id)
			require.NoError(t, err)
			require.Equal(t, models.StatusCreated, sess.Status)
		}
	})

	t.Run("not paid", func(t *testing.T) {
		id := e.session(t, 3000)
		cb := gateway.LinkCallback{LinkID: "plink_2", ReferenceID: id, Status: "cancelled"}
		loc := callback(id, cb, gateway.SignLinkCallback(cb, keySecret))
		require.Equal(t, "failed", loc.Query().Get("payment"))
	})

	t.Run("paid", func(t *testing.T) {
		id := e.session(t, 3000)
		cb := gateway.LinkCallback{LinkID: "plink_3", ReferenceID: id, Status: "paid", PaymentID: "pay_c"}
		loc := callback(id, cb, gateway.SignLinkCallback(cb, keySecret))
		require.Equal(t, "success", loc.Query().Get("payment"))
		require.Equal(t, "Asha", loc.Query().Get("name"))

		sess, err := e.repo.Session(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, models.StatusPaid, sess.Status)

		// Browser refresh replays the same callback.
		loc = callback(id, cb, gateway.SignLinkCallback(cb, keySecret))
		require.Equal(t, "success", loc.Query().Get("payment"))
	})
}

func TestPotsETag(t *testing.T) {
	e := newEnv(t)
	e.pot(t, "home")
	r := gin.New()
	r.GET("/pots", ListPots(e.svc))
	r.GET("/pots/:slug", GetPot(e.svc))

	w := do(r, http.MethodGet, "/pots", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	w = do(r, http.MethodGet, "/pots", nil, http.Header{"If-None-Match": {etag}})
	require.Equal(t, http.StatusNotModified, w.Code)

	// A paid contribution changes the totals and so the tag.
	id := e.session(t, 2500)
	cb := gateway.LinkCallback{LinkID: "plink", ReferenceID: id, Status: "paid", PaymentID: "pay"}
	require.True(t, e.svc.HandleLinkCallback(context.Background(), id, cb, gateway.SignLinkCallback(cb, keySecret)).Success)

	w = do(r, http.MethodGet, "/pots", nil, http.Header{"If-None-Match": {etag}})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEqual(t, etag, w.Header().Get("ETag"))

	require.Equal(t, http.StatusOK, do(r, http.MethodGet, "/pots/home", nil, nil).Code)
	require.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/pots/nope", nil, nil).Code)
}

func TestUpiBlessingOverHTTP(t *testing.T) {
	e := newEnv(t)
	e.pot(t, "home")
	r := gin.New()
	r.POST("/upi/session", CreateUpiSession(e.svc))
	r.POST("/upi/blessing", ConfirmBlessing(e.svc))

	w := do(r, http.MethodPost, "/upi/session", gin.H{"allocations": []gin.H{{"pot_id": "pot-home", "amount_paise": 1500}}}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	quote := decode(t, w)
	require.EqualValues(t, 0, quote["fee_amount"])
	id := quote["session_id"].(string)

	blessing := gin.H{"session_id": id, "donor_name": "Ravi", "donor_phone": "+919811111111", "donor_message": "Blessings", "utr": "UTR123"}
	w = do(r, http.MethodPost, "/upi/blessing", gin.H{"session_id": id, "donor_name": "Ravi"}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/upi/blessing", blessing, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, models.StatusPaid, decode(t, w)["status"])

	sess, err := e.repo.Session(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "Ravi", sess.DonorName)
	require.Equal(t, "Blessings", sess.DonorMessage)
	require.Equal(t, "UTR123", sess.TransactionRef)

	w = do(r, http.MethodPost, "/upi/blessing", blessing, nil)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestAdminEndpoints(t *testing.T) {
	e := newEnv(t)
	e.pot(t, "home")
	id := e.session(t, 4000)

	r := gin.New()
	r.POST("/admin/login", AdminLogin(e.cfg))
	admin := r.Group("/admin", middleware.AuthMiddleware(e.cfg))
	admin.GET("/dashboard", Dashboard(e.svc))
	admin.GET("/contributions", ListContributions(e.svc))
	admin.GET("/contributions/export", ExportContributions(e.svc))
	admin.POST("/contributions/:id/status", SetContributionStatus(e.svc))
	admin.POST("/pots", CreatePot(e.svc, nil))

	require.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/admin/login", gin.H{"username": "admin", "password": "nope"}, nil).Code)
	require.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/admin/dashboard", nil, nil).Code)

	w := do(r, http.MethodPost, "/admin/login", gin.H{"username": "admin", "password": "s3cret"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	auth := http.Header{"Authorization": {"Bearer " + decode(t, w)["token"].(string)}}

	w = do(r, http.MethodPost, "/admin/contributions/"+id+"/status", gin.H{"status": "received"}, auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, models.StatusPaid, decode(t, w)["status"])

	w = do(r, http.MethodPost, "/admin/contributions/"+id+"/status", gin.H{"status": "refunded"}, auth)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/admin/dashboard", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 4000, decode(t, w)["total_collected"])

	w = do(r, http.MethodGet, "/admin/contributions?status=paid", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)

	w = do(r, http.MethodGet, "/admin/contributions/export", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	require.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "session_id,"))

	w = do(r, http.MethodPost, "/admin/pots", gin.H{"title": "Honeymoon Fund"}, auth)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Equal(t, "honeymoon-fund", decode(t, w)["slug"])
}

func TestAdminLoginDisabled(t *testing.T) {
	e := newEnv(t)
	e.cfg.AdminPassword = ""
	r := gin.New()
	r.POST("/admin/login", AdminLogin(e.cfg))
	require.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/admin/login", gin.H{"username": "admin", "password": "x"}, nil).Code)
}

func TestPublicConfigAndHealth(t *testing.T) {
	e := newEnv(t)
	r := gin.New()
	r.GET("/config", PublicConfig(e.cfg))
	r.GET("/health", Health(e.svc))

	w := do(r, http.MethodGet, "/config", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.Equal(t, "couple@upi", body["upi_id"])
	require.Equal(t, contributions.FeeRate, body["fee_rate"])

	require.Equal(t, http.StatusOK, do(r, http.MethodGet, "/health", nil, nil).Code)
}
