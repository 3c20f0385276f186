// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign %s not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id string) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

func IsCampaignNotFound(err error) bool {
	var nf *ErrCampaignNotFound
	return errors.As(err, &nf)
}

// ErrInvalidInput rejects a schedule request synchronously; nothing is
// persisted when it is returned.
type ErrInvalidInput struct {
	Reason string
}

func (e *ErrInvalidInput) Error() string {
	return "invalid input: " + e.Reason
}

func NewInvalidInput(reason string) error {
	return &ErrInvalidInput{Reason: reason}
}

func IsInvalidInput(err error) bool {
	var ii *ErrInvalidInput
	return errors.As(err, &ii)
}

// ErrBlobNotFound is returned by the payload blob store for an absent id.
var ErrBlobNotFound = errors.New("payload blob not found")
