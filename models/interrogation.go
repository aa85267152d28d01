package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Score bounds for both the interrogator and the supervisor
const (
	MinInterrogationScore = 1
	MaxInterrogationScore = 10
)

// InterrogationStage is derived from the confirmation flags and feedback, never stored
type InterrogationStage string

// Interrogation stages
const (
	StageScoring         InterrogationStage = "SCORING"
	StageAwaitingCaptain InterrogationStage = "AWAITING_CAPTAIN"
	StageCaptainDecided  InterrogationStage = "CAPTAIN_DECIDED"
	StageChiefDecided    InterrogationStage = "CHIEF_DECIDED"
)

// Decision is the captain's outcome for an interrogation
type Decision string

// Decisions
const (
	DecisionGuilty   Decision = "GUILTY"
	DecisionInnocent Decision = "INNOCENT"
)

// Valid reports whether d is GUILTY or INNOCENT
func (d Decision) Valid() bool {
	return d == DecisionGuilty || d == DecisionInnocent
}

// Interrogation holds the structure for the interrogations collection in mongo
type Interrogation struct {
	ID      primitive.ObjectID   `json:"_id" bson:"_id"`
	Details InterrogationDetails `json:"interrogation" bson:"interrogation"`
	Version int32                `json:"__v" bson:"__v"`
}

// InterrogationDetails holds the inner interrogation details
type InterrogationDetails struct {
	SuspectID  string `json:"suspectID" bson:"suspectID"`
	CaseID     string `json:"caseID" bson:"caseID"`
	Transcript string `json:"transcript" bson:"transcript"`

	InterrogatorScore       *int   `json:"interrogatorScore,omitempty" bson:"interrogatorScore,omitempty"`
	InterrogatorID          string `json:"interrogatorID,omitempty" bson:"interrogatorID,omitempty"`
	IsInterrogatorConfirmed bool   `json:"isInterrogatorConfirmed" bson:"isInterrogatorConfirmed"`

	SupervisorScore       *int   `json:"supervisorScore,omitempty" bson:"supervisorScore,omitempty"`
	SupervisorID          string `json:"supervisorID,omitempty" bson:"supervisorID,omitempty"`
	IsSupervisorConfirmed bool   `json:"isSupervisorConfirmed" bson:"isSupervisorConfirmed"`

	Feedback *InterrogationFeedback `json:"feedback,omitempty" bson:"feedback,omitempty"`

	CreatedAt primitive.DateTime `json:"createdAt" bson:"createdAt"`
	UpdatedAt primitive.DateTime `json:"updatedAt" bson:"updatedAt"`
}

// InterrogationFeedback is the captain's decision, created exactly once
type InterrogationFeedback struct {
	Decision  Decision           `json:"decision" bson:"decision"`
	Notes     string             `json:"notes" bson:"notes"`
	CaptainID string             `json:"captainID" bson:"captainID"`
	DecidedAt primitive.DateTime `json:"decidedAt" bson:"decidedAt"`

	// Chief is only ever set for critical cases
	Chief *ChiefConfirmation `json:"chief,omitempty" bson:"chief,omitempty"`
}

// ChiefConfirmation records whether the chief agrees with the captain
type ChiefConfirmation struct {
	IsConfirmed bool               `json:"isConfirmed" bson:"isConfirmed"`
	Notes       string             `json:"notes" bson:"notes"`
	ChiefID     string             `json:"chiefID" bson:"chiefID"`
	DecidedAt   primitive.DateTime `json:"decidedAt" bson:"decidedAt"`
}

// BothConfirmed reports whether both scorers have committed
func (d InterrogationDetails) BothConfirmed() bool {
	return d.IsInterrogatorConfirmed && d.IsSupervisorConfirmed
}

// FinalScore is the mean of the two confirmed scores. ok is false while either is unconfirmed.
func (d InterrogationDetails) FinalScore() (score float64, ok bool) {
	if !d.BothConfirmed() || d.InterrogatorScore == nil || d.SupervisorScore == nil {
		return 0, false
	}
	return float64(*d.InterrogatorScore+*d.SupervisorScore) / 2, true
}

// Stage derives the consensus stage
func (d InterrogationDetails) Stage() InterrogationStage {
	switch {
	case d.Feedback != nil && d.Feedback.Chief != nil:
		return StageChiefDecided
	case d.Feedback != nil:
		return StageCaptainDecided
	case d.BothConfirmed():
		return StageAwaitingCaptain
	}
	return StageScoring
}

// Clone returns a deep copy
func (i Interrogation) Clone() Interrogation {
	out := i
	if i.Details.InterrogatorScore != nil {
		v := *i.Details.InterrogatorScore
		out.Details.InterrogatorScore = &v
	}
	if i.Details.SupervisorScore != nil {
		v := *i.Details.SupervisorScore
		out.Details.SupervisorScore = &v
	}
	if i.Details.Feedback != nil {
		fb := *i.Details.Feedback
		if fb.Chief != nil {
			ch := *fb.Chief
			fb.Chief = &ch
		}
		out.Details.Feedback = &fb
	}
	return out
}

// InterrogationView is the api representation with the derived fields filled in
type InterrogationView struct {
	Interrogation
	Stage      InterrogationStage `json:"stage"`
	FinalScore *float64           `json:"finalScore,omitempty"`
}

// View fills in the derived fields
func (i Interrogation) View() InterrogationView {
	v := InterrogationView{Interrogation: i, Stage: i.Details.Stage()}
	if s, ok := i.Details.FinalScore(); ok {
		v.FinalScore = &s
	}
	return v
}
