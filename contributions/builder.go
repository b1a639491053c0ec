package contributions

import (
	"context"
	"html"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/phillip/giftpots-go/apperr"
	"github.com/phillip/giftpots-go/metrics"
	"github.com/phillip/giftpots-go/models"
	"github.com/phillip/giftpots-go/store"
)

// FeeRate is the gateway surcharge a donor may choose to cover.
const FeeRate = 0.0236

type Donor struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type AllocationInput struct {
	PotID     string `json:"pot_id"`
	PotItemID string `json:"pot_item_id,omitempty"`
	Amount    int64  `json:"amount"`
}

type SessionRequest struct {
	// SessionID, when set, replaces an existing session that is still created.
	SessionID   string
	Donor       Donor
	Allocations []AllocationInput
	CoverFees   bool
}

type SessionQuote struct {
	SessionID  string `json:"session_id"`
	Total      int64  `json:"total_amount"`
	Fee        int64  `json:"fee_amount"`
	GrandTotal int64  `json:"grand_total"`
}

// ComputeFee rounds half away from zero to whole minor units.
func ComputeFee(total int64, coverFees bool) int64 {
	if !coverFees {
		return 0
	}
	return int64(math.Round(float64(total) * FeeRate))
}

func cleanDonor(d Donor) Donor {
	return Donor{
		Name:    html.EscapeString(strings.TrimSpace(d.Name)),
		Email:   strings.TrimSpace(d.Email),
		Phone:   strings.TrimSpace(d.Phone),
		Message: html.EscapeString(strings.TrimSpace(d.Message)),
	}
}

// ---------------- CREATE / REPLACE ----------------

func (s *Service) CreateOrReplaceSession(ctx context.Context, req SessionRequest) (*SessionQuote, error) {
	donor := cleanDonor(req.Donor)
	if donor.Name == "" || donor.Email == "" || donor.Phone == "" {
		return nil, apperr.Validation("name, email, and phone are required")
	}
	total, err := s.checkAllocations(ctx, req.Allocations)
	if err != nil {
		return nil, err
	}
	fee := ComputeFee(total, req.CoverFees)
	now := s.now()

	sessionID := strings.TrimSpace(req.SessionID)
	replacing := sessionID != ""

	err = s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		if !replacing {
			sessionID = uuid.NewString()
			sess := &models.ContributionSession{
				ID:            sessionID,
				DonorName:     donor.Name,
				DonorEmail:    donor.Email,
				DonorPhone:    donor.Phone,
				DonorMessage:  donor.Message,
				TotalAmount:   total,
				FeeAmount:     fee,
				Status:        models.StatusCreated,
				PaymentMethod: models.MethodGateway,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := s.repo.InsertSession(ctx, sess); err != nil {
				return err
			}
			return s.repo.InsertAllocations(ctx, newAllocations(sessionID, req.Allocations, now))
		}

		existing, err := s.repo.Session(ctx, sessionID)
		if err != nil {
			return err
		}
		if existing.Status != models.StatusCreated {
			return apperr.InvalidState("session can no longer be modified", existing.Status)
		}
		// Allocations are only touched once the status guard has matched.
		n, err := s.repo.PatchSession(ctx, sessionID, map[string]interface{}{
			"donor_name":    donor.Name,
			"donor_email":   donor.Email,
			"donor_phone":   donor.Phone,
			"donor_message": donor.Message,
			"total_amount":  total,
			"fee_amount":    fee,
			"updated_at":    now,
		}, store.Eq("status", models.StatusCreated))
		if err != nil {
			return err
		}
		if n == 0 {
			current := models.StatusPending
			if cur, err := s.repo.Session(ctx, sessionID); err == nil {
				current = cur.Status
			}
			return apperr.InvalidState("session can no longer be modified", current)
		}
		if _, err := s.repo.DeleteSessionAllocations(ctx, sessionID); err != nil {
			return err
		}
		return s.repo.InsertAllocations(ctx, newAllocations(sessionID, req.Allocations, now))
	})
	if err != nil {
		return nil, err
	}

	if !replacing {
		metrics.SessionsCreated.WithLabelValues(models.MethodGateway).Inc()
	}
	log.WithFields(log.Fields{
		"session_id": sessionID,
		"total":      total,
		"fee":        fee,
		"replaced":   replacing,
	}).Info("contribution session saved")

	return &SessionQuote{SessionID: sessionID, Total: total, Fee: fee, GrandTotal: total + fee}, nil
}

// CreateUpiSession records a donor-less session for the manual UPI flow.
// Donor details arrive later with the blessing confirmation.
func (s *Service) CreateUpiSession(ctx context.Context, allocations []AllocationInput) (*SessionQuote, error) {
	total, err := s.checkAllocations(ctx, allocations)
	if err != nil {
		return nil, err
	}
	now := s.now()
	sess := &models.ContributionSession{
		ID:            uuid.NewString(),
		TotalAmount:   total,
		Status:        models.StatusCreated,
		PaymentMethod: models.MethodUPI,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.InsertSession(ctx, sess); err != nil {
			return err
		}
		return s.repo.InsertAllocations(ctx, newAllocations(sess.ID, allocations, now))
	})
	if err != nil {
		return nil, err
	}

	metrics.SessionsCreated.WithLabelValues(models.MethodUPI).Inc()
	log.WithFields(log.Fields{"session_id": sess.ID, "total": total}).Info("upi session created")
	return &SessionQuote{SessionID: sess.ID, Total: total, GrandTotal: total}, nil
}

// checkAllocations validates the request and returns the allocation total.
func (s *Service) checkAllocations(ctx context.Context, allocations []AllocationInput) (int64, error) {
	if len(allocations) == 0 {
		return 0, apperr.Validation("at least one allocation is required")
	}
	var total int64
	potIDs := make([]string, 0, len(allocations))
	seen := map[string]bool{}
	for _, a := range allocations {
		if strings.TrimSpace(a.PotID) == "" {
			return 0, apperr.Validation("pot_id is required for every allocation")
		}
		if a.Amount <= 0 {
			return 0, apperr.Validation("allocation amounts must be positive")
		}
		total += a.Amount
		if !seen[a.PotID] {
			seen[a.PotID] = true
			potIDs = append(potIDs, a.PotID)
		}
	}

	pots, err := s.repo.Pots(ctx, store.Where(store.InStrings("_id", potIDs)))
	if err != nil {
		return 0, err
	}
	byID := make(map[string]models.Pot, len(pots))
	for _, p := range pots {
		byID[p.ID] = p
	}
	for _, id := range potIDs {
		p, ok := byID[id]
		if !ok {
			return 0, apperr.NotFound("pot")
		}
		if !p.IsActive {
			return 0, apperr.Validation("pot %q is not accepting contributions", p.Title)
		}
	}

	var itemIDs []string
	for _, a := range allocations {
		if a.PotItemID != "" {
			itemIDs = append(itemIDs, a.PotItemID)
		}
	}
	if len(itemIDs) == 0 {
		return total, nil
	}
	items, err := s.repo.PotItems(ctx, store.Where(store.InStrings("_id", itemIDs)))
	if err != nil {
		return 0, err
	}
	itemPot := make(map[string]string, len(items))
	for _, it := range items {
		itemPot[it.ID] = it.PotID
	}
	for _, a := range allocations {
		if a.PotItemID == "" {
			continue
		}
		potID, ok := itemPot[a.PotItemID]
		if !ok {
			return 0, apperr.NotFound("pot item")
		}
		if potID != a.PotID {
			return 0, apperr.Validation("pot item %q does not belong to pot %q", a.PotItemID, a.PotID)
		}
	}
	return total, nil
}

func newAllocations(sessionID string, in []AllocationInput, now time.Time) []models.Allocation {
	out := make([]models.Allocation, len(in))
	for i, a := range in {
		out[i] = models.Allocation{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			PotID:     a.PotID,
			PotItemID: a.PotItemID,
			Amount:    a.Amount,
			Status:    models.StatusPending,
			Position:  i,
			CreatedAt: now,
		}
	}
	return out
}
