package pion

import (
	"fmt"

	"github.com/Wyydra/pairchat/internal/core/domain"
	"github.com/pion/sdp/v3"
)

const maxSDPBytes = 64 * 1024

// SDPValidator checks that a session description parses and offers at
// least one media section before it is written to a call.
type SDPValidator struct{}

func NewSDPValidator() SDPValidator {
	return SDPValidator{}
}

func (SDPValidator) Validate(desc domain.SessionDescription) error {
	switch desc.Type {
	case domain.SDPOffer, domain.SDPAnswer:
	default:
		return fmt.Errorf("%w: unsupported type %q", domain.ErrInvalidSDP, desc.Type)
	}
	if len(desc.SDP) > maxSDPBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", domain.ErrInvalidSDP, len(desc.SDP), maxSDPBytes)
	}

	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(desc.SDP)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidSDP, err)
	}
	if len(parsed.MediaDescriptions) == 0 {
		return fmt.Errorf("%w: no media sections", domain.ErrInvalidSDP)
	}
	return nil
}
