package contributions

import (
	"context"

	"github.com/phillip/giftpots-go/models"
	"github.com/phillip/giftpots-go/store"
)

// statusWrite describes one change of a session's financial status.
type statusWrite struct {
	Status string
	// Fields are extra session columns written in the same patch.
	Fields map[string]interface{}
	// From lists the statuses the session may currently be in. Empty means
	// unconditional (admin override).
	From []string
}

func allocationStatus(sessionStatus string) string {
	switch sessionStatus {
	case models.StatusPaid, models.StatusFailed:
		return sessionStatus
	default:
		return models.StatusPending
	}
}

// writeFinancialStatus is the only code path that changes
// contribution_sessions.status or allocations.status. Both are written in one
// transaction, always as absolute values, so repeating a write is harmless.
// It reports false when the From guard no longer matched.
func (s *Service) writeFinancialStatus(ctx context.Context, sessionID string, w statusWrite) (bool, error) {
	changes := map[string]interface{}{
		"status":     w.Status,
		"updated_at": s.now(),
	}
	for k, v := range w.Fields {
		changes[k] = v
	}
	var guard []store.Cond
	if len(w.From) > 0 {
		guard = append(guard, store.InStrings("status", w.From))
	}

	var applied bool
	err := s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		applied = false
		n, err := s.repo.PatchSession(ctx, sessionID, changes, guard...)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if _, err := s.repo.PatchSessionAllocations(ctx, sessionID, map[string]interface{}{
			"status": allocationStatus(w.Status),
		}); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}
