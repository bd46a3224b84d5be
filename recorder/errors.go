package recorder

import (
	"errors"
	"fmt"
)

var (
	ErrCapabilityUnavailable = errors.New("audio recording is not supported")
	ErrCapabilityDenied      = errors.New("microphone access denied")
	ErrUploadFailed          = errors.New("upload failed")
)

// capabilityError makes sure an Open failure carries one of the capability
// sentinels. Unclassified failures count as a denial.
func capabilityError(err error) error {
	if errors.Is(err, ErrCapabilityUnavailable) || errors.Is(err, ErrCapabilityDenied) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrCapabilityDenied, err)
}

func uploadError(err error) error {
	if errors.Is(err, ErrUploadFailed) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUploadFailed, err)
}
