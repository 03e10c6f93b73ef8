package port

import "github.com/Wyydra/pairchat/internal/core/domain"

// SDPValidator rejects session descriptions the peers could not apply.
type SDPValidator interface {
	Validate(desc domain.SessionDescription) error
}
