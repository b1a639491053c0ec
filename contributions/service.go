// Package contributions is the contribution-session and reconciliation
// engine: it records donor intent, opens gateway orders, applies payment
// confirmations exactly once per session, and recomputes pot totals.
package contributions

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/phillip/giftpots-go/gateway"
	"github.com/phillip/giftpots-go/models"
	"github.com/phillip/giftpots-go/store"
)

// Notifier is told about every session that newly became paid.
type Notifier interface {
	ContributionPaid(ctx context.Context, session *models.ContributionSession) error
}

type Options struct {
	// KeyID is handed to the checkout widget along with the order.
	KeyID string
	// KeySecret signs payment-link callbacks.
	KeySecret     string
	WebhookSecret string
	// AppURL is the default base for payment-link callback URLs.
	AppURL          string
	LinkDescription string
	Now             func() time.Time
}

type Service struct {
	repo     *store.Repo
	gateway  gateway.Gateway
	notifier Notifier
	opts     Options
}

func NewService(repo *store.Repo, gw gateway.Gateway, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LinkDescription == "" {
		opts.LinkDescription = "Wedding gift"
	}
	return &Service{repo: repo, gateway: gw, opts: opts}
}

func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

func (s *Service) now() time.Time {
	return s.opts.Now().UTC()
}

// Ping checks the record store.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Service) notifyPaid(ctx context.Context, sess *models.ContributionSession) {
	if s.notifier == nil || sess == nil {
		return
	}
	if err := s.notifier.ContributionPaid(ctx, sess); err != nil {
		log.WithError(err).WithField("session_id", sess.ID).Warn("failed to send contribution receipt")
	}
}
