package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// VerdictResult is the judge's finding
type VerdictResult string

// Verdict results
const (
	VerdictGuilty   VerdictResult = "GUILTY"
	VerdictInnocent VerdictResult = "INNOCENT"
)

// Valid reports whether r is GUILTY or INNOCENT
func (r VerdictResult) Valid() bool {
	return r == VerdictGuilty || r == VerdictInnocent
}

// PaymentKind selects which amount a payment settles
type PaymentKind string

// Payment kinds
const (
	PaymentBail PaymentKind = "bail"
	PaymentFine PaymentKind = "fine"
)

// Valid reports whether k is bail or fine
func (k PaymentKind) Valid() bool {
	return k == PaymentBail || k == PaymentFine
}

// Verdict holds the structure for the verdicts collection in mongo
type Verdict struct {
	ID      primitive.ObjectID `json:"_id" bson:"_id"`
	Details VerdictDetails     `json:"verdict" bson:"verdict"`
	Version int32              `json:"__v" bson:"__v"`
}

// VerdictDetails holds the inner verdict details
type VerdictDetails struct {
	CaseID     string        `json:"caseID" bson:"caseID"`
	SuspectID  string        `json:"suspectID" bson:"suspectID"`
	JudgeID    string        `json:"judgeID" bson:"judgeID"`
	Result     VerdictResult `json:"result" bson:"result"`
	Punishment string        `json:"punishment,omitempty" bson:"punishment,omitempty"`

	BailAmount       *int64 `json:"bailAmount,omitempty" bson:"bailAmount,omitempty"`
	FineAmount       *int64 `json:"fineAmount,omitempty" bson:"fineAmount,omitempty"`
	BailPaid         bool   `json:"bailPaid" bson:"bailPaid"`
	FinePaid         bool   `json:"finePaid" bson:"finePaid"`
	BailTrackingCode string `json:"bailTrackingCode,omitempty" bson:"bailTrackingCode,omitempty"`
	FineTrackingCode string `json:"fineTrackingCode,omitempty" bson:"fineTrackingCode,omitempty"`

	// IsEligibleForBail is fixed when the verdict is created
	IsEligibleForBail bool `json:"isEligibleForBail" bson:"isEligibleForBail"`

	CreatedAt primitive.DateTime `json:"createdAt" bson:"createdAt"`
	UpdatedAt primitive.DateTime `json:"updatedAt" bson:"updatedAt"`
}

// Clone returns a deep copy
func (v Verdict) Clone() Verdict {
	out := v
	if v.Details.BailAmount != nil {
		b := *v.Details.BailAmount
		out.Details.BailAmount = &b
	}
	if v.Details.FineAmount != nil {
		f := *v.Details.FineAmount
		out.Details.FineAmount = &f
	}
	return out
}
