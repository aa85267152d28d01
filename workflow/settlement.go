package workflow

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/linesmerrill/case-portal-api/authority"
	"github.com/linesmerrill/case-portal-api/models"
)

// VerdictInput is the judge's ruling on one suspect of a solved case
type VerdictInput struct {
	CaseID     string               `json:"caseID"`
	SuspectID  string               `json:"suspectID"`
	Result     models.VerdictResult `json:"result"`
	Punishment string               `json:"punishment"`
}

// VerdictSettlement manages verdicts, their bail and fine amounts, and payment reports
// from the payment collaborator. It never talks to a gateway.
type VerdictSettlement struct {
	deps *Deps
}

// NewVerdictSettlement returns a VerdictSettlement
func NewVerdictSettlement(d *Deps) *VerdictSettlement {
	return &VerdictSettlement{deps: d}
}

// CreateVerdict records a verdict. Bail eligibility is fixed here from the case's crime level.
func (vs *VerdictSettlement) CreateVerdict(ctx context.Context, p authority.Principal, in VerdictInput) (*models.Verdict, error) {
	const op = "CreateVerdict"
	if !vs.deps.allowed(p, authority.ActionCreateVerdict, authority.Snapshot{}) {
		return nil, denied(op)
	}
	if !in.Result.Valid() {
		return nil, newError(ErrValidation, op, "result %q is not GUILTY or INNOCENT", in.Result)
	}
	c, err := loadCaseByHex(ctx, vs.deps, op, in.CaseID)
	if err != nil {
		return nil, err
	}
	if c.Details.Status != models.StatusSolved {
		return nil, newError(ErrInvalidTransition, op, "case is %s, expected %s", c.Details.Status, models.StatusSolved)
	}
	sID, err := primitive.ObjectIDFromHex(in.SuspectID)
	if err != nil {
		return nil, newError(ErrValidation, op, "invalid suspect id %q", in.SuspectID)
	}
	s, err := vs.deps.Suspects.GetSuspect(ctx, sID)
	if err != nil {
		return nil, storeError(op, err)
	}
	if s.Details.CaseID != c.ID.Hex() {
		return nil, newError(ErrValidation, op, "suspect %s is not on case %s", in.SuspectID, in.CaseID)
	}
	n, err := vs.deps.Verdicts.CountVerdicts(ctx, c.ID.Hex(), sID.Hex())
	if err != nil {
		return nil, storeError(op, err)
	}
	if n > 0 {
		return nil, newError(ErrValidation, op, "suspect already has a verdict on this case")
	}
	punishment := strings.TrimSpace(in.Punishment)
	if in.Result == models.VerdictInnocent {
		punishment = ""
	}
	now := vs.deps.nowDateTime()
	v := &models.Verdict{
		ID: primitive.NewObjectID(),
		Details: models.VerdictDetails{
			CaseID:            c.ID.Hex(),
			SuspectID:         sID.Hex(),
			JudgeID:           p.UserID,
			Result:            in.Result,
			Punishment:        punishment,
			IsEligibleForBail: c.Details.CrimeLevel.BailEligible(),
			CreatedAt:         now,
			UpdatedAt:         now,
		},
	}
	if err := vs.deps.Verdicts.InsertVerdict(ctx, v); err != nil {
		return nil, storeError(op, err)
	}
	return v, nil
}

// GetVerdict returns a verdict. Citizens only see verdicts on cases they filed or are
// a complainant on.
func (vs *VerdictSettlement) GetVerdict(ctx context.Context, p authority.Principal, id primitive.ObjectID) (*models.Verdict, error) {
	const op = "GetVerdict"
	if !vs.deps.allowed(p, authority.ActionViewVerdict, authority.Snapshot{}) {
		return nil, denied(op)
	}
	v, err := vs.deps.Verdicts.GetVerdict(ctx, id)
	if err != nil {
		return nil, storeError(op, err)
	}
	if citizenOnly(p) {
		c, err := loadCaseByHex(ctx, vs.deps, op, v.Details.CaseID)
		if err != nil {
			return nil, err
		}
		if c.Details.CreatorID != p.UserID && !c.Details.HasComplainant(p.UserID) {
			return nil, denied(op)
		}
	}
	return v, nil
}

// SetBailFine sets either amount while its paid flag is false. A call that changes
// nothing is rejected.
func (vs *VerdictSettlement) SetBailFine(ctx context.Context, p authority.Principal, id primitive.ObjectID, bail, fine *int64) (*models.Verdict, error) {
	const op = "SetBailFine"
	if !vs.deps.allowed(p, authority.ActionSetBailFine, authority.Snapshot{}) {
		return nil, denied(op)
	}
	if bail == nil && fine == nil {
		return nil, newError(ErrValidation, op, "no amount provided")
	}
	if (bail != nil && *bail <= 0) || (fine != nil && *fine <= 0) {
		return nil, newError(ErrValidation, op, "amounts must be positive")
	}
	return vs.swap(ctx, id, op, func(v *models.Verdict) error {
		d := &v.Details
		if d.Result == models.VerdictInnocent {
			return newError(ErrValidation, op, "an innocent verdict carries no bail or fine")
		}
		if bail != nil && !d.IsEligibleForBail {
			return newError(ErrValidation, op, "verdict is not eligible for bail")
		}
		bailChanged := bail != nil && !sameAmount(d.BailAmount, *bail)
		fineChanged := fine != nil && !sameAmount(d.FineAmount, *fine)
		if bailChanged && d.BailPaid {
			return newError(ErrImmutableFieldViolation, op, "bail is already paid")
		}
		if fineChanged && d.FinePaid {
			return newError(ErrImmutableFieldViolation, op, "fine is already paid")
		}
		if !bailChanged && !fineChanged {
			return newError(ErrValidation, op, "nothing to change")
		}
		if bailChanged {
			b := *bail
			d.BailAmount = &b
		}
		if fineChanged {
			f := *fine
			d.FineAmount = &f
		}
		d.UpdatedAt = vs.deps.nowDateTime()
		return nil
	})
}

func sameAmount(cur *int64, next int64) bool {
	return cur != nil && *cur == next
}

// ReportPaymentResult is the payment collaborator's callback. A failed payment changes
// nothing. A repeated success with the same tracking code is accepted without effect.
func (vs *VerdictSettlement) ReportPaymentResult(ctx context.Context, id primitive.ObjectID, kind models.PaymentKind, trackingCode string, success bool) (*models.Verdict, error) {
	const op = "ReportPaymentResult"
	if !kind.Valid() {
		return nil, newError(ErrValidation, op, "payment kind %q is not bail or fine", kind)
	}
	trackingCode = strings.TrimSpace(trackingCode)
	if trackingCode == "" {
		return nil, newError(ErrValidation, op, "tracking code is required")
	}
	var settled bool
	v, err := vs.swap(ctx, id, op, func(v *models.Verdict) error {
		settled = false
		d := &v.Details
		amount, paid, code := &d.BailAmount, &d.BailPaid, &d.BailTrackingCode
		if kind == models.PaymentFine {
			amount, paid, code = &d.FineAmount, &d.FinePaid, &d.FineTrackingCode
		}
		if *amount == nil {
			return newError(ErrInvalidTransition, op, "no %s amount is set", kind)
		}
		if *paid {
			if *code == trackingCode {
				return errUnchanged
			}
			return newError(ErrImmutableFieldViolation, op, "%s already paid with another tracking code", kind)
		}
		if !success {
			return errUnchanged
		}
		*paid = true
		*code = trackingCode
		d.UpdatedAt = vs.deps.nowDateTime()
		settled = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if settled {
		ev := newEvent(models.EventPaymentSettled, v.ID.Hex(), "", vs.deps.now())
		ev.Kind = kind
		vs.deps.emit(ctx, ev)
	}
	return v, nil
}

func (vs *VerdictSettlement) swap(ctx context.Context, id primitive.ObjectID, op string, mutate func(*models.Verdict) error) (*models.Verdict, error) {
	return compareAndSwap(ctx, vs.deps, op,
		func(ctx context.Context) (*models.Verdict, error) { return vs.deps.Verdicts.GetVerdict(ctx, id) },
		cloneVerdict,
		vs.deps.Verdicts.SwapVerdict,
		mutate)
}
