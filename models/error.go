package models

import "errors"

// ErrorMessageResponse returns the error message response struct
type ErrorMessageResponse struct {
	Response MessageError `json:"response"`
}

// MessageError contains the inner details for the error message response
type MessageError struct {
	Message string
	Error   string
	Code    string `json:",omitempty"`
}

// HealthCheckResponse is returned by the health endpoint
type HealthCheckResponse struct {
	Alive bool `json:"alive"`
}

// ErrNotFound is returned by stores when no document matches
var ErrNotFound = errors.New("document not found")

// ErrVersionConflict is returned by a compare-and-swap when the stored version moved
var ErrVersionConflict = errors.New("version conflict")
