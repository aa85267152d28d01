package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/linesmerrill/case-portal-api/authority"
	"github.com/linesmerrill/case-portal-api/models"
)

const swapMaxElapsed = 2 * time.Second

// errUnchanged lets a mutation report that the entity already has the requested
// state. The loaded value is returned and nothing is written.
var errUnchanged = errors.New("unchanged")

// Deps are the collaborators shared by every workflow component
type Deps struct {
	Authority      *authority.Authority
	Cases          CaseStore
	Suspects       SuspectStore
	Interrogations InterrogationStore
	Verdicts       VerdictStore
	Notifier       Notifier

	// Clock defaults to time.Now
	Clock func() time.Time
	// Backoff builds the retry schedule for version conflicts. BackOff values are
	// stateful so this is a constructor, not a value.
	Backoff func() backoff.BackOff
}

func (d *Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}

func (d *Deps) nowDateTime() primitive.DateTime {
	return primitive.NewDateTimeFromTime(d.now())
}

func (d *Deps) backoff(ctx context.Context) backoff.BackOff {
	var bo backoff.BackOff
	if d.Backoff != nil {
		bo = d.Backoff()
	} else {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 10 * time.Millisecond
		eb.MaxElapsedTime = swapMaxElapsed
		bo = eb
	}
	return backoff.WithContext(bo, ctx)
}

func (d *Deps) allowed(p authority.Principal, a authority.Action, snap authority.Snapshot) bool {
	return d.Authority != nil && d.Authority.HasPermission(p, a, snap)
}

// compareAndSwap is the single-writer unit for one entity: load, copy, validate and
// mutate the copy, then swap on the loaded version. A version conflict reloads and
// re-validates, so a loser of a race sees the winner's state. mutate must not perform
// I/O. Any error it returns aborts without a write.
func compareAndSwap[T any](
	ctx context.Context,
	d *Deps,
	op string,
	load func(context.Context) (*T, error),
	clone func(T) T,
	swap func(context.Context, *T) error,
	mutate func(*T) error,
) (*T, error) {
	var out *T
	err := backoff.Retry(func() error {
		cur, err := load(ctx)
		if err != nil {
			return backoff.Permanent(storeError(op, err))
		}
		next := clone(*cur)
		if err := mutate(&next); err != nil {
			if errors.Is(err, errUnchanged) {
				out = cur
				return nil
			}
			return backoff.Permanent(err)
		}
		if err := swap(ctx, &next); err != nil {
			if errors.Is(err, models.ErrVersionConflict) {
				return err
			}
			return backoff.Permanent(storeError(op, err))
		}
		out = &next
		return nil
	}, d.backoff(ctx))
	if err != nil {
		if errors.Is(err, models.ErrVersionConflict) {
			return nil, &Error{Kind: ErrConflict, Op: op}
		}
		return nil, err
	}
	return out, nil
}

func cloneCase(c models.Case) models.Case                            { return c.Clone() }
func cloneSuspect(s models.Suspect) models.Suspect                   { return s }
func cloneInterrogation(i models.Interrogation) models.Interrogation { return i.Clone() }
func cloneVerdict(v models.Verdict) models.Verdict                   { return v.Clone() }
