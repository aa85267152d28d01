package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// SuspectStatus tracks how far the arrest has progressed
type SuspectStatus string

// Suspect statuses
const (
	SuspectIdentified  SuspectStatus = "IDENTIFIED"
	SuspectUnderArrest SuspectStatus = "UNDER_ARREST"
	SuspectArrested    SuspectStatus = "ARRESTED"
)

// Valid reports whether s is a known suspect status
func (s SuspectStatus) Valid() bool {
	switch s {
	case SuspectIdentified, SuspectUnderArrest, SuspectArrested:
		return true
	}
	return false
}

// Suspect holds the structure for the suspects collection in mongo
type Suspect struct {
	ID      primitive.ObjectID `json:"_id" bson:"_id"`
	Details SuspectDetails     `json:"suspect" bson:"suspect"`
	Version int32              `json:"__v" bson:"__v"`
}

// SuspectDetails holds the inner suspect details
type SuspectDetails struct {
	CaseID        string        `json:"caseID" bson:"caseID"`
	FirstName     string        `json:"firstName" bson:"firstName"`
	LastName      string        `json:"lastName" bson:"lastName"`
	NationalCode  string        `json:"nationalCode,omitempty" bson:"nationalCode,omitempty"`
	IsMainSuspect bool          `json:"isMainSuspect" bson:"isMainSuspect"`
	Status        SuspectStatus `json:"status" bson:"status"`

	// IsOnBoard controls visibility on the investigation board, independent of the workflow
	IsOnBoard bool `json:"isOnBoard" bson:"isOnBoard"`

	AddedByUserID string             `json:"addedByUserID" bson:"addedByUserID"`
	ArrestedAt    primitive.DateTime `json:"arrestedAt,omitempty" bson:"arrestedAt,omitempty"`
	CreatedAt     primitive.DateTime `json:"createdAt" bson:"createdAt"`
	UpdatedAt     primitive.DateTime `json:"updatedAt" bson:"updatedAt"`
}

// FullName joins the name parts
func (d SuspectDetails) FullName() string {
	switch {
	case d.FirstName == "":
		return d.LastName
	case d.LastName == "":
		return d.FirstName
	}
	return d.FirstName + " " + d.LastName
}
