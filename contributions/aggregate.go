package contributions

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/phillip/giftpots-go/apperr"
	"github.com/phillip/giftpots-go/models"
	"github.com/phillip/giftpots-go/store"
)

const (
	sampleContributors = 10
	recentSessions     = 10
	anonymousDonor     = "Guest"
)

type PotSummary struct {
	models.Pot
	TotalRaised      int64    `json:"total_raised"`
	ContributorNames []string `json:"contributor_names"`
	ContributorCount int      `json:"contributor_count"`
}

type PotDetail struct {
	models.Pot
	Items       []models.PotItem `json:"items"`
	TotalRaised int64            `json:"total_raised"`
}

type Contributor struct {
	Name    string     `json:"donor_name"`
	Message string     `json:"donor_message,omitempty"`
	PaidAt  *time.Time `json:"paid_at,omitempty"`
}

type Progress struct {
	PotID               string `json:"pot_id"`
	PotTitle            string `json:"pot_title"`
	GoalAmount          *int64 `json:"goal_amount"`
	RaisedBefore        int64  `json:"raised_before"`
	SessionContribution int64  `json:"session_contribution"`
	RaisedAfter         int64  `json:"raised_after"`
}

// SessionStatus is the public polling view of a session.
type SessionStatus struct {
	ID               string     `json:"id"`
	Status           string     `json:"status"`
	TotalAmount      int64      `json:"total_amount"`
	FeeAmount        int64      `json:"fee_amount"`
	PaymentMethod    string     `json:"payment_method"`
	GatewayOrderID   string     `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string     `json:"gateway_payment_id,omitempty"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
}

// ---------------- PUBLIC ----------------

func (s *Service) ListActivePots(ctx context.Context) ([]PotSummary, error) {
	pots, err := s.repo.Pots(ctx, store.Where(store.Eq("is_active", true)).OrderByDesc("created_at"))
	if err != nil {
		return nil, err
	}
	if len(pots) == 0 {
		return []PotSummary{}, nil
	}
	ids := make([]string, len(pots))
	for i, p := range pots {
		ids[i] = p.ID
	}

	allocs, err := s.repo.Allocations(ctx, store.Where(
		store.Eq("status", models.StatusPaid),
		store.InStrings("pot_id", ids),
	).OrderBy("created_at").OrderBy("position"))
	if err != nil {
		return nil, err
	}
	sessions, err := s.repo.SessionsByIDs(ctx, sessionIDs(allocs))
	if err != nil {
		return nil, err
	}

	totals := map[string]int64{}
	names := map[string][]string{}
	seen := map[string]map[string]bool{}
	for _, a := range allocs {
		totals[a.PotID] += a.Amount
		name := displayName(sessions[a.SessionID].DonorName)
		if seen[a.PotID] == nil {
			seen[a.PotID] = map[string]bool{}
		}
		if !seen[a.PotID][name] {
			seen[a.PotID][name] = true
			names[a.PotID] = append(names[a.PotID], name)
		}
	}

	out := make([]PotSummary, len(pots))
	for i, p := range pots {
		sample := names[p.ID]
		if len(sample) > sampleContributors {
			sample = sample[:sampleContributors]
		}
		if sample == nil {
			sample = []string{}
		}
		out[i] = PotSummary{
			Pot:              p,
			TotalRaised:      totals[p.ID],
			ContributorNames: sample,
			ContributorCount: len(names[p.ID]),
		}
	}
	return out, nil
}

func (s *Service) GetPotBySlug(ctx context.Context, slug string) (*PotDetail, error) {
	pot, err := s.repo.PotBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.PotItems(ctx, store.Where(store.Eq("pot_id", pot.ID)).OrderBy("sort_order"))
	if err != nil {
		return nil, err
	}
	raised, err := s.paidTotal(ctx, pot.ID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.PotItem{}
	}
	return &PotDetail{Pot: *pot, Items: items, TotalRaised: raised}, nil
}

// ListContributors returns named paid donors to a pot, newest first.
func (s *Service) ListContributors(ctx context.Context, slug string) ([]Contributor, error) {
	pot, err := s.repo.PotBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	allocs, err := s.repo.Allocations(ctx, store.Where(
		store.Eq("pot_id", pot.ID),
		store.Eq("status", models.StatusPaid),
	))
	if err != nil {
		return nil, err
	}
	out := []Contributor{}
	ids := sessionIDs(allocs)
	if len(ids) == 0 {
		return out, nil
	}
	sessions, err := s.repo.Sessions(ctx, store.Where(
		store.InStrings("_id", ids),
		store.Eq("status", models.StatusPaid),
	).OrderByDesc("paid_at"))
	if err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		if strings.TrimSpace(sess.DonorName) == "" {
			continue
		}
		out = append(out, Contributor{Name: sess.DonorName, Message: sess.DonorMessage, PaidAt: sess.PaidAt})
	}
	return out, nil
}

func (s *Service) GetSession(ctx context.Context, id string) (*SessionStatus, error) {
	sess, err := s.repo.Session(ctx, id)
	if err != nil {
		return nil, err
	}
	return &SessionStatus{
		ID:               sess.ID,
		Status:           sess.Status,
		TotalAmount:      sess.TotalAmount,
		FeeAmount:        sess.FeeAmount,
		PaymentMethod:    sess.PaymentMethod,
		GatewayOrderID:   sess.GatewayOrderID,
		GatewayPaymentID: sess.GatewayPaymentID,
		PaidAt:           sess.PaidAt,
	}, nil
}

// GetSessionProgress reports before/after figures for the pot of the
// session's first allocation.
func (s *Service) GetSessionProgress(ctx context.Context, sessionID string) (*Progress, error) {
	allocs, err := s.repo.SessionAllocations(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(allocs) == 0 {
		return nil, apperr.NotFound("session allocations")
	}
	potID := allocs[0].PotID
	var contribution int64
	for _, a := range allocs {
		if a.PotID == potID {
			contribution += a.Amount
		}
	}

	pot, err := s.repo.Pot(ctx, potID)
	if err != nil {
		return nil, err
	}
	// Paid money from every other session, in one read.
	others, err := s.repo.Allocations(ctx, store.Where(
		store.Eq("pot_id", potID),
		store.Eq("status", models.StatusPaid),
		store.Ne("session_id", sessionID),
	))
	if err != nil {
		return nil, err
	}
	var before int64
	for _, a := range others {
		before += a.Amount
	}

	return &Progress{
		PotID:               pot.ID,
		PotTitle:            pot.Title,
		GoalAmount:          pot.GoalAmount,
		RaisedBefore:        before,
		SessionContribution: contribution,
		RaisedAfter:         before + contribution,
	}, nil
}

// ---------------- ADMIN VIEWS ----------------

type PotStat struct {
	PotID       string `json:"pot_id"`
	Title       string `json:"title"`
	GoalAmount  *int64 `json:"goal_amount"`
	TotalRaised int64  `json:"total_raised"`
	IsActive    bool   `json:"is_active"`
}

type Dashboard struct {
	TotalCollected      int64                        `json:"total_collected"`
	PaidContributions   int                          `json:"paid_contributions"`
	TotalPots           int                          `json:"total_pots"`
	ActivePots          int                          `json:"active_pots"`
	PotStats            []PotStat                    `json:"pot_stats"`
	RecentContributions []models.ContributionSession `json:"recent_contributions"`
}

func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	pots, err := s.repo.Pots(ctx, store.Query{}.OrderByDesc("created_at"))
	if err != nil {
		return nil, err
	}
	allocs, err := s.repo.Allocations(ctx, store.Where(store.Eq("status", models.StatusPaid)))
	if err != nil {
		return nil, err
	}
	paid, err := s.repo.Sessions(ctx, store.Where(store.Eq("status", models.StatusPaid)).OrderByDesc("paid_at"))
	if err != nil {
		return nil, err
	}

	totals := map[string]int64{}
	for _, a := range allocs {
		totals[a.PotID] += a.Amount
	}

	d := &Dashboard{
		PaidContributions: len(paid),
		TotalPots:         len(pots),
		PotStats:          make([]PotStat, 0, len(pots)),
	}
	for _, p := range pots {
		if p.IsActive {
			d.ActivePots++
		}
		d.PotStats = append(d.PotStats, PotStat{
			PotID:       p.ID,
			Title:       p.Title,
			GoalAmount:  p.GoalAmount,
			TotalRaised: totals[p.ID],
			IsActive:    p.IsActive,
		})
	}
	for _, sess := range paid {
		d.TotalCollected += sess.TotalAmount
	}
	if len(paid) > recentSessions {
		paid = paid[:recentSessions]
	}
	d.RecentContributions = paid
	if d.RecentContributions == nil {
		d.RecentContributions = []models.ContributionSession{}
	}
	return d, nil
}

// ListContributions returns sessions newest first with their allocations.
// An empty status lists every session.
func (s *Service) ListContributions(ctx context.Context, status string) ([]models.ContributionSession, error) {
	q := store.Query{}
	if status != "" {
		q = store.Where(store.Eq("status", status))
	}
	sessions, err := s.repo.Sessions(ctx, q.OrderByDesc("created_at"))
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return []models.ContributionSession{}, nil
	}
	return sessions, s.attachAllocations(ctx, sessions)
}

var exportHeader = []string{
	"session_id", "donor_name", "donor_email", "donor_phone", "donor_message",
	"pots", "total_amount", "fee_amount", "payment_method", "gateway_payment_id",
	"transaction_ref", "paid_at",
}

// ExportPaidContributions writes every paid session as CSV.
func (s *Service) ExportPaidContributions(ctx context.Context, w io.Writer) error {
	sessions, err := s.repo.Sessions(ctx, store.Where(store.Eq("status", models.StatusPaid)).OrderByDesc("paid_at"))
	if err != nil {
		return err
	}
	if err := s.attachAllocations(ctx, sessions); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return errors.Wrap(err, "write csv header")
	}
	for _, sess := range sessions {
		var pots []string
		for _, a := range sess.Allocations {
			pots = append(pots, a.PotTitle+": "+strconv.FormatInt(a.Amount, 10))
		}
		paidAt := ""
		if sess.PaidAt != nil {
			paidAt = sess.PaidAt.UTC().Format(time.RFC3339)
		}
		row := []string{
			sess.ID, sess.DonorName, sess.DonorEmail, sess.DonorPhone, sess.DonorMessage,
			strings.Join(pots, "; "),
			strconv.FormatInt(sess.TotalAmount, 10),
			strconv.FormatInt(sess.FeeAmount, 10),
			sess.PaymentMethod, sess.GatewayPaymentID, sess.TransactionRef, paidAt,
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "write csv row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}

// ---------------- HELPERS ----------------

func (s *Service) paidTotal(ctx context.Context, potID string) (int64, error) {
	allocs, err := s.repo.Allocations(ctx, store.Where(
		store.Eq("pot_id", potID),
		store.Eq("status", models.StatusPaid),
	))
	if err != nil {
		return 0, err
	}
	var total int64
	for _, a := range allocs {
		total += a.Amount
	}
	return total, nil
}

func (s *Service) attachAllocations(ctx context.Context, sessions []models.ContributionSession) error {
	ids := make([]string, len(sessions))
	for i, sess := range sessions {
		ids[i] = sess.ID
	}
	allocs, err := s.repo.Allocations(ctx, store.Where(store.InStrings("session_id", ids)).OrderBy("position"))
	if err != nil {
		return err
	}
	pots, err := s.repo.Pots(ctx, store.Query{})
	if err != nil {
		return err
	}
	titles := make(map[string]string, len(pots))
	for _, p := range pots {
		titles[p.ID] = p.Title
	}

	bySession := map[string][]models.Allocation{}
	for _, a := range allocs {
		a.PotTitle = titles[a.PotID]
		bySession[a.SessionID] = append(bySession[a.SessionID], a)
	}
	for i := range sessions {
		sessions[i].Allocations = bySession[sessions[i].ID]
	}
	return nil
}

func sessionIDs(allocs []models.Allocation) []string {
	seen := map[string]bool{}
	var ids []string
	for _, a := range allocs {
		if !seen[a.SessionID] {
			seen[a.SessionID] = true
			ids = append(ids, a.SessionID)
		}
	}
	return ids
}

func displayName(name string) string {
	if strings.TrimSpace(name) == "" {
		return anonymousDonor
	}
	return name
}
