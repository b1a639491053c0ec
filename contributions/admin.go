package contributions

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/phillip/giftpots-go/apperr"
	"github.com/phillip/giftpots-go/models"
	"github.com/phillip/giftpots-go/store"
)

// Admin-facing status names.
const (
	AdminReceived = "received"
	AdminFailed   = "failed"
)

// ---------------- STATUS OVERRIDE ----------------

// SetContributionStatus force-writes a session and its allocations. It skips
// the state machine entirely and is not idempotency-protected.
func (s *Service) SetContributionStatus(ctx context.Context, sessionID, status string) (string, error) {
	var target string
	switch status {
	case AdminReceived:
		target = models.StatusPaid
	case AdminFailed:
		target = models.StatusFailed
	default:
		return "", apperr.Validation("status must be %q or %q", AdminReceived, AdminFailed)
	}

	sess, err := s.repo.Session(ctx, sessionID)
	if err != nil {
		return "", err
	}
	fields := map[string]interface{}{}
	if target == models.StatusPaid && sess.PaidAt == nil {
		fields["paid_at"] = s.now()
	}
	if _, err := s.writeFinancialStatus(ctx, sessionID, statusWrite{Status: target, Fields: fields}); err != nil {
		return "", err
	}

	log.WithFields(log.Fields{
		"session_id": sessionID,
		"from":       sess.Status,
		"to":         target,
	}).Warn("contribution status overridden by admin")
	return target, nil
}

// ---------------- POTS ----------------

type PotInput struct {
	Title         string `json:"title"`
	Slug          string `json:"slug"`
	StoryText     string `json:"story_text"`
	CoverImageURL string `json:"cover_image_url"`
	GoalAmount    *int64 `json:"goal_amount"`
}

// PotPatch carries only the fields being changed.
type PotPatch struct {
	Title         *string `json:"title"`
	StoryText     *string `json:"story_text"`
	CoverImageURL *string `json:"cover_image_url"`
	GoalAmount    *int64  `json:"goal_amount"`
	IsActive      *bool   `json:"is_active"`
}

type AdminPot struct {
	models.Pot
	Items       []models.PotItem `json:"items"`
	TotalRaised int64            `json:"total_raised"`
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases and collapses anything outside [a-z0-9] to single dashes.
func Slugify(s string) string {
	return strings.Trim(slugUnsafe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-"), "-")
}

func (s *Service) AdminListPots(ctx context.Context) ([]AdminPot, error) {
	pots, err := s.repo.Pots(ctx, store.Query{}.OrderByDesc("created_at"))
	if err != nil {
		return nil, err
	}
	items, err := s.repo.PotItems(ctx, store.Query{}.OrderBy("sort_order"))
	if err != nil {
		return nil, err
	}
	allocs, err := s.repo.Allocations(ctx, store.Where(store.Eq("status", models.StatusPaid)))
	if err != nil {
		return nil, err
	}

	byPot := map[string][]models.PotItem{}
	for _, it := range items {
		byPot[it.PotID] = append(byPot[it.PotID], it)
	}
	totals := map[string]int64{}
	for _, a := range allocs {
		totals[a.PotID] += a.Amount
	}

	out := make([]AdminPot, len(pots))
	for i, p := range pots {
		its := byPot[p.ID]
		if its == nil {
			its = []models.PotItem{}
		}
		out[i] = AdminPot{Pot: p, Items: its, TotalRaised: totals[p.ID]}
	}
	return out, nil
}

func (s *Service) CreatePot(ctx context.Context, in PotInput) (*models.Pot, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Validation("title is required")
	}
	slug := Slugify(in.Slug)
	if slug == "" {
		slug = Slugify(title)
	}
	if slug == "" {
		return nil, apperr.Validation("slug must contain letters or digits")
	}
	if in.GoalAmount != nil && *in.GoalAmount <= 0 {
		return nil, apperr.Validation("goal_amount must be positive")
	}

	if _, err := s.repo.PotBySlug(ctx, slug); err == nil {
		return nil, apperr.Validation("slug %q is already in use", slug)
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}

	now := s.now()
	pot := &models.Pot{
		ID:            uuid.NewString(),
		Title:         title,
		Slug:          slug,
		StoryText:     strings.TrimSpace(in.StoryText),
		CoverImageURL: strings.TrimSpace(in.CoverImageURL),
		GoalAmount:    in.GoalAmount,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.InsertPot(ctx, pot); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"pot_id": pot.ID, "slug": slug}).Info("pot created")
	return pot, nil
}

func (s *Service) UpdatePot(ctx context.Context, id string, p PotPatch) (*models.Pot, error) {
	changes := map[string]interface{}{}
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return nil, apperr.Validation("title cannot be empty")
		}
		changes["title"] = t
	}
	if p.StoryText != nil {
		changes["story_text"] = strings.TrimSpace(*p.StoryText)
	}
	if p.CoverImageURL != nil {
		changes["cover_image_url"] = strings.TrimSpace(*p.CoverImageURL)
	}
	if p.GoalAmount != nil {
		if *p.GoalAmount <= 0 {
			return nil, apperr.Validation("goal_amount must be positive")
		}
		changes["goal_amount"] = *p.GoalAmount
	}
	if p.IsActive != nil {
		changes["is_active"] = *p.IsActive
	}
	if len(changes) == 0 {
		return nil, apperr.Validation("no fields to update")
	}
	return s.patchPot(ctx, id, changes)
}

// ArchivePot hides a pot from donors. Pots are never deleted because paid
// allocations keep referencing them.
func (s *Service) ArchivePot(ctx context.Context, id string) (*models.Pot, error) {
	return s.patchPot(ctx, id, map[string]interface{}{"is_active": false})
}

func (s *Service) patchPot(ctx context.Context, id string, changes map[string]interface{}) (*models.Pot, error) {
	changes["updated_at"] = s.now()
	n, err := s.repo.PatchPot(ctx, id, changes)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperr.NotFound("pot")
	}
	return s.repo.Pot(ctx, id)
}

// ---------------- POT ITEMS ----------------

type PotItemInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	SortOrder   int    `json:"sort_order"`
}

type PotItemPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	ImageURL    *string `json:"image_url"`
	SortOrder   *int    `json:"sort_order"`
}

func (s *Service) AddPotItem(ctx context.Context, potID string, in PotItemInput) (*models.PotItem, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Validation("title is required")
	}
	if _, err := s.repo.Pot(ctx, potID); err != nil {
		return nil, err
	}
	item := &models.PotItem{
		ID:          uuid.NewString(),
		PotID:       potID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		ImageURL:    strings.TrimSpace(in.ImageURL),
		SortOrder:   in.SortOrder,
		CreatedAt:   s.now(),
	}
	if err := s.repo.InsertPotItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) UpdatePotItem(ctx context.Context, id string, p PotItemPatch) (*models.PotItem, error) {
	changes := map[string]interface{}{}
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return nil, apperr.Validation("title cannot be empty")
		}
		changes["title"] = t
	}
	if p.Description != nil {
		changes["description"] = strings.TrimSpace(*p.Description)
	}
	if p.ImageURL != nil {
		changes["image_url"] = strings.TrimSpace(*p.ImageURL)
	}
	if p.SortOrder != nil {
		changes["sort_order"] = *p.SortOrder
	}
	if len(changes) == 0 {
		return nil, apperr.Validation("no fields to update")
	}
	n, err := s.repo.PatchPotItem(ctx, id, changes)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperr.NotFound("pot item")
	}
	return s.repo.PotItem(ctx, id)
}

// DeletePotItem returns the removed item so callers can clean up its image.
func (s *Service) DeletePotItem(ctx context.Context, id string) (*models.PotItem, error) {
	item, err := s.repo.PotItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.DeletePotItem(ctx, id); err != nil {
		return nil, err
	}
	return item, nil
}
