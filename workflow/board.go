package workflow

import (
	"context"

	"github.com/linesmerrill/case-portal-api/authority"
	"github.com/linesmerrill/case-portal-api/models"
	"github.com/linesmerrill/case-portal-api/pursuit"
)

// PursuitBoard builds the most-wanted board on demand from current suspect and case state
type PursuitBoard struct {
	deps   *Deps
	policy pursuit.Policy
}

// NewPursuitBoard returns a PursuitBoard ranking with policy
func NewPursuitBoard(d *Deps, policy pursuit.Policy) *PursuitBoard {
	return &PursuitBoard{deps: d, policy: policy}
}

// MostWanted ranks every unarrested suspect. Suspects on cancelled cases are left off.
func (b *PursuitBoard) MostWanted(ctx context.Context, p authority.Principal) ([]pursuit.Entry, error) {
	const op = "MostWanted"
	if !b.deps.allowed(p, authority.ActionViewPursuit, authority.Snapshot{}) {
		return nil, denied(op)
	}
	suspects, err := b.deps.Suspects.ListUnarrestedSuspects(ctx)
	if err != nil {
		return nil, storeError(op, err)
	}
	cases := make(map[string]*models.Case)
	candidates := make([]pursuit.Candidate, 0, len(suspects))
	for _, s := range suspects {
		c, ok := cases[s.Details.CaseID]
		if !ok {
			c, err = loadCaseByHex(ctx, b.deps, op, s.Details.CaseID)
			if err != nil {
				return nil, err
			}
			cases[s.Details.CaseID] = c
		}
		if c.Details.Status == models.StatusCancelled {
			continue
		}
		candidates = append(candidates, pursuit.Candidate{
			SuspectID:     s.ID.Hex(),
			CaseID:        s.Details.CaseID,
			Name:          s.Details.FullName(),
			NationalCode:  s.Details.NationalCode,
			Status:        s.Details.Status,
			CrimeLevel:    c.Details.CrimeLevel,
			CaseCreatedAt: c.Details.CreatedAt.Time(),
		})
	}
	return pursuit.Rank(candidates, b.deps.now(), b.policy), nil
}
