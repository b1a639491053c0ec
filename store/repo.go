package store

import (
	"context"

	"github.com/phillip/giftpots-go/apperr"
	"github.com/phillip/giftpots-go/models"
)

// Repo is the typed view over a Store used by the contribution service.
type Repo struct {
	Store
}

func NewRepo(s Store) *Repo {
	return &Repo{Store: s}
}

// ---------------- SESSIONS ----------------

func (r *Repo) Session(ctx context.Context, id string) (*models.ContributionSession, error) {
	var rows []models.ContributionSession
	if err := r.Find(ctx, TableSessions, Where(Eq("_id", id)).Take(1), &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperr.NotFound("session")
	}
	return &rows[0], nil
}

// SessionByOrderID returns nil without error when no session carries orderID.
func (r *Repo) SessionByOrderID(ctx context.Context, orderID string) (*models.ContributionSession, error) {
	var rows []models.ContributionSession
	if err := r.Find(ctx, TableSessions, Where(Eq("gateway_order_id", orderID)).Take(1), &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *Repo) Sessions(ctx context.Context, q Query) ([]models.ContributionSession, error) {
	var rows []models.ContributionSession
	if err := r.Find(ctx, TableSessions, q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repo) SessionsByIDs(ctx context.Context, ids []string) (map[string]models.ContributionSession, error) {
	out := make(map[string]models.ContributionSession, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.Sessions(ctx, Where(InStrings("_id", ids)))
	if err != nil {
		return nil, err
	}
	for _, s := range rows {
		out[s.ID] = s
	}
	return out, nil
}

func (r *Repo) InsertSession(ctx context.Context, s *models.ContributionSession) error {
	return r.Insert(ctx, TableSessions, s)
}

// PatchSession applies changes to one session. Extra conditions guard the
// write; the returned count is 0 when the session no longer satisfies them.
func (r *Repo) PatchSession(ctx context.Context, id string, changes map[string]interface{}, guard ...Cond) (int64, error) {
	f := append(Filter{Eq("_id", id)}, guard...)
	return r.Patch(ctx, TableSessions, changes, f)
}

// ---------------- ALLOCATIONS ----------------

func (r *Repo) Allocations(ctx context.Context, q Query) ([]models.Allocation, error) {
	var rows []models.Allocation
	if err := r.Find(ctx, TableAllocations, q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// SessionAllocations returns a session's allocations in insertion order.
func (r *Repo) SessionAllocations(ctx context.Context, sessionID string) ([]models.Allocation, error) {
	return r.Allocations(ctx, Where(Eq("session_id", sessionID)).OrderBy("position"))
}

func (r *Repo) InsertAllocations(ctx context.Context, allocs []models.Allocation) error {
	docs := make([]interface{}, len(allocs))
	for i := range allocs {
		docs[i] = allocs[i]
	}
	return r.Insert(ctx, TableAllocations, docs...)
}

func (r *Repo) DeleteSessionAllocations(ctx context.Context, sessionID string) (int64, error) {
	return r.Delete(ctx, TableAllocations, Filter{Eq("session_id", sessionID)})
}

func (r *Repo) PatchSessionAllocations(ctx context.Context, sessionID string, changes map[string]interface{}) (int64, error) {
	return r.Patch(ctx, TableAllocations, changes, Filter{Eq("session_id", sessionID)})
}

// ---------------- POTS ----------------

func (r *Repo) Pots(ctx context.Context, q Query) ([]models.Pot, error) {
	var rows []models.Pot
	if err := r.Find(ctx, TablePots, q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repo) Pot(ctx context.Context, id string) (*models.Pot, error) {
	rows, err := r.Pots(ctx, Where(Eq("_id", id)).Take(1))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperr.NotFound("pot")
	}
	return &rows[0], nil
}

func (r *Repo) PotBySlug(ctx context.Context, slug string) (*models.Pot, error) {
	rows, err := r.Pots(ctx, Where(Eq("slug", slug)).Take(1))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperr.NotFound("pot")
	}
	return &rows[0], nil
}

func (r *Repo) InsertPot(ctx context.Context, p *models.Pot) error {
	return r.Insert(ctx, TablePots, p)
}

func (r *Repo) PatchPot(ctx context.Context, id string, changes map[string]interface{}) (int64, error) {
	return r.Patch(ctx, TablePots, changes, Filter{Eq("_id", id)})
}

func (r *Repo) PotItems(ctx context.Context, q Query) ([]models.PotItem, error) {
	var rows []models.PotItem
	if err := r.Find(ctx, TablePotItems, q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repo) PotItem(ctx context.Context, id string) (*models.PotItem, error) {
	rows, err := r.PotItems(ctx, Where(Eq("_id", id)).Take(1))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperr.NotFound("pot item")
	}
	return &rows[0], nil
}

func (r *Repo) InsertPotItem(ctx context.Context, item *models.PotItem) error {
	return r.Insert(ctx, TablePotItems, item)
}

func (r *Repo) PatchPotItem(ctx context.Context, id string, changes map[string]interface{}) (int64, error) {
	return r.Patch(ctx, TablePotItems, changes, Filter{Eq("_id", id)})
}

func (r *Repo) DeletePotItem(ctx context.Context, id string) (int64, error) {
	return r.Delete(ctx, TablePotItems, Filter{Eq("_id", id)})
}

// ---------------- WEBHOOK EVENTS ----------------

func (r *Repo) InsertWebhookEvent(ctx context.Context, ev *models.WebhookEvent) error {
	return r.Insert(ctx, TableWebhookEvents, ev)
}

func (r *Repo) WebhookEvents(ctx context.Context, q Query) ([]models.WebhookEvent, error) {
	var rows []models.WebhookEvent
	if err := r.Find(ctx, TableWebhookEvents, q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
