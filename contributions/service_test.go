//go:generate mockgen -destination=gateway_mock_test.go -package=contributions github.com/phillip/giftpots-go/gateway Gateway

package contributions

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/phillip/giftpots-go/gateway"
	"github.com/phillip/giftpots-go/models"
	"github.com/phillip/giftpots-go/store"
)

const (
	testWebhookSecret = "whsec_test"
	testKeySecret     = "key_secret_test"
)

// tickClock advances one second per reading.
type tickClock struct {
	t time.Time
}

func (c *tickClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	svc  *Service
	repo *store.Repo
	gw   *MockGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := store.NewRepo(store.NewMemoryStore())
	gw := NewMockGateway(ctrl)
	clock := &tickClock{t: time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC)}
	svc := NewService(repo, gw, Options{
		KeyID:         "rzp_test_key",
		KeySecret:     testKeySecret,
		WebhookSecret: testWebhookSecret,
		AppURL:        "https://gifts.example.com",
		Now:           clock.Now,
	})
	return &fixture{svc: svc, repo: repo, gw: gw}
}

func (f *fixture) pot(t *testing.T, slug string, active bool) *models.Pot {
	t.Helper()
	p := &models.Pot{
		ID:        "pot-" + slug,
		Title:     "Pot " + slug,
		Slug:      slug,
		IsActive:  active,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, f.repo.InsertPot(context.Background(), p))
	return p
}

var testDonor = Donor{
	Name:    "Asha",
	Email:   "asha@example.com",
	Phone:   "+919800000000",
	Message: "Congratulations!",
}

func (f *fixture) session(t *testing.T, cover bool, allocs ...AllocationInput) *SessionQuote {
	t.Helper()
	q, err := f.svc.CreateOrReplaceSession(context.Background(), SessionRequest{
		Donor:       testDonor,
		Allocations: allocs,
		CoverFees:   cover,
	})
	require.NoError(t, err)
	return q
}

// pending creates a gateway session and opens an order for it.
func (f *fixture) pending(t *testing.T, orderID string, allocs ...AllocationInput) *SessionQuote {
	t.Helper()
	q := f.session(t, false, allocs...)
	f.gw.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).
		Return(&gateway.Order{ID: orderID, Amount: q.GrandTotal, Currency: gateway.CurrencyINR}, nil)
	_, err := f.svc.CreateOrder(context.Background(), q.SessionID)
	require.NoError(t, err)
	return q
}

// paid takes a session all the way through a captured webhook.
func (f *fixture) paid(t *testing.T, orderID string, allocs ...AllocationInput) *SessionQuote {
	t.Helper()
	q := f.pending(t, orderID, allocs...)
	body := capturedBody(orderID, "pay_"+orderID, q.GrandTotal)
	res, err := f.svc.HandleWebhook(context.Background(), body, gateway.Sign(body, testWebhookSecret), "")
	require.NoError(t, err)
	require.Equal(t, WebhookOK, res)
	return q
}

func (f *fixture) loadSession(t *testing.T, id string) *models.ContributionSession {
	t.Helper()
	sess, err := f.repo.Session(context.Background(), id)
	require.NoError(t, err)
	allocs, err := f.repo.SessionAllocations(context.Background(), id)
	require.NoError(t, err)
	sess.Allocations = allocs
	return sess
}

func requireAllocationStatus(t *testing.T, sess *models.ContributionSession, status string) {
	t.Helper()
	require.NotEmpty(t, sess.Allocations)
	for _, a := range sess.Allocations {
		require.Equal(t, status, a.Status, "allocation %s", a.ID)
	}
}

func alloc(potID string, amount int64) AllocationInput {
	return AllocationInput{PotID: potID, Amount: amount}
}

func capturedBody(orderID, paymentID string, amount int64) []byte {
	return []byte(fmt.Sprintf(
		`{"entity":"event","event":"payment.captured","payload":{"payment":{"entity":{"id":%q,"order_id":%q,"amount":%d,"status":"captured"}}}}`,
		paymentID, orderID, amount,
	))
}

type recordingNotifier struct {
	paid []string
	err  error
}

func (n *recordingNotifier) ContributionPaid(_ context.Context, s *models.ContributionSession) error {
	n.paid = append(n.paid, s.ID)
	return n.err
}
