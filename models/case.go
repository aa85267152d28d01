package models

import (
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaxSubmissionAttempts is the number of resubmissions a citizen gets before the case is voided
const MaxSubmissionAttempts = 3

// CaseStatus is the closed set of states a case moves through. On the wire (json and
// bson) a status is always its two-letter code.
type CaseStatus uint8

// Case statuses
const (
	StatusUnknown CaseStatus = iota
	StatusPendingTrainee
	StatusPendingOfficer
	StatusActive
	StatusPendingSergeant
	StatusPendingChief
	StatusSolved
	StatusNeedsResubmission
	StatusCancelled
)

var caseStatusCodes = map[CaseStatus]string{
	StatusPendingTrainee:    "PT",
	StatusPendingOfficer:    "PO",
	StatusActive:            "AC",
	StatusPendingSergeant:   "PS",
	StatusPendingChief:      "PC",
	StatusSolved:            "SO",
	StatusNeedsResubmission: "RE",
	StatusCancelled:         "CA",
}

// ParseCaseStatus converts a two-letter code into a CaseStatus
func ParseCaseStatus(code string) (CaseStatus, error) {
	for s, c := range caseStatusCodes {
		if c == code {
			return s, nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown case status %q", code)
}

func (s CaseStatus) String() string {
	if c, ok := caseStatusCodes[s]; ok {
		return c
	}
	return "??"
}

// Valid reports whether s is one of the defined statuses
func (s CaseStatus) Valid() bool {
	_, ok := caseStatusCodes[s]
	return ok
}

// Terminal reports whether no further mutation is allowed
func (s CaseStatus) Terminal() bool {
	return s == StatusSolved || s == StatusCancelled
}

// MarshalJSON writes the two-letter code
func (s CaseStatus) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("cannot marshal case status %d", uint8(s))
	}
	return json.Marshal(s.String())
}

// UnmarshalJSON reads the two-letter code
func (s *CaseStatus) UnmarshalJSON(b []byte) error {
	var code string
	if err := json.Unmarshal(b, &code); err != nil {
		return err
	}
	parsed, err := ParseCaseStatus(code)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalBSONValue stores the status as its two-letter code
func (s CaseStatus) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if !s.Valid() {
		return 0, nil, fmt.Errorf("cannot marshal case status %d", uint8(s))
	}
	return bson.MarshalValue(s.String())
}

// UnmarshalBSONValue reads the two-letter code
func (s *CaseStatus) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	code, ok := bson.RawValue{Type: t, Value: data}.StringValueOK()
	if !ok {
		return fmt.Errorf("case status must be a string, got %s", t)
	}
	parsed, err := ParseCaseStatus(code)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// CrimeLevel ranks severity, 0 being the most severe (critical)
type CrimeLevel int

// Crime levels
const (
	CrimeLevelCritical CrimeLevel = 0
	CrimeLevelOne      CrimeLevel = 1
	CrimeLevelTwo      CrimeLevel = 2
	CrimeLevelThree    CrimeLevel = 3
)

// Valid reports whether l is within 0..3
func (l CrimeLevel) Valid() bool {
	return l >= CrimeLevelCritical && l <= CrimeLevelThree
}

// Critical reports whether the case needs chief sign-off
func (l CrimeLevel) Critical() bool {
	return l == CrimeLevelCritical
}

// BailEligible is true only for the two intermediate severities
func (l CrimeLevel) BailEligible() bool {
	return l == CrimeLevelOne || l == CrimeLevelTwo
}

// Case holds the structure for the cases collection in mongo
type Case struct {
	ID      primitive.ObjectID `json:"_id" bson:"_id"`
	Details CaseDetails        `json:"case" bson:"case"`
	Version int32              `json:"__v" bson:"__v"`
}

// CaseDetails holds the inner case details
type CaseDetails struct {
	Title       string     `json:"title" bson:"title"`
	Description string     `json:"description" bson:"description"`
	CrimeLevel  CrimeLevel `json:"crimeLevel" bson:"crimeLevel"`
	Status      CaseStatus `json:"status" bson:"status"`

	// CreatorID is the owning citizen, or the reporting officer for scene reports
	CreatorID          string   `json:"creatorID" bson:"creatorID"`
	Complainants       []string `json:"complainants" bson:"complainants"`
	SubmissionAttempts int      `json:"submissionAttempts" bson:"submissionAttempts"`
	ReviewNotes        string   `json:"reviewNotes,omitempty" bson:"reviewNotes,omitempty"`

	SceneReport *SceneReport `json:"sceneReport,omitempty" bson:"sceneReport,omitempty"`

	History []CaseHistoryEntry `json:"history" bson:"history"`

	CreatedAt primitive.DateTime `json:"createdAt" bson:"createdAt"`
	UpdatedAt primitive.DateTime `json:"updatedAt" bson:"updatedAt"`
}

// SceneReport carries what the reporting officer saw at the scene
type SceneReport struct {
	Location   string             `json:"location" bson:"location"`
	OccurredAt primitive.DateTime `json:"occurredAt" bson:"occurredAt"`
	Witnesses  []string           `json:"witnesses" bson:"witnesses"`
}

// CaseHistoryEntry records a single transition in the case lifecycle
type CaseHistoryEntry struct {
	Action    string             `json:"action" bson:"action"`
	From      CaseStatus         `json:"from,omitempty" bson:"from,omitempty"`
	To        CaseStatus         `json:"to" bson:"to"`
	UserID    string             `json:"userID" bson:"userID"`
	Notes     string             `json:"notes,omitempty" bson:"notes,omitempty"`
	Timestamp primitive.DateTime `json:"timestamp" bson:"timestamp"`
}

// HasComplainant reports whether userID is already a complainant
func (d CaseDetails) HasComplainant(userID string) bool {
	for _, c := range d.Complainants {
		if c == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so a candidate mutation never touches the stored value
func (c Case) Clone() Case {
	out := c
	out.Details.Complainants = append([]string(nil), c.Details.Complainants...)
	out.Details.History = append([]CaseHistoryEntry(nil), c.Details.History...)
	if c.Details.SceneReport != nil {
		sr := *c.Details.SceneReport
		sr.Witnesses = append([]string(nil), sr.Witnesses...)
		out.Details.SceneReport = &sr
	}
	return out
}
