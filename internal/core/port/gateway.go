package port

import (
	"context"

	"github.com/Wyydra/pairchat/internal/core/domain"
)

type RealTimeGateway interface {
	SendToUser(ctx context.Context, userID domain.UserID, event domain.Event) error
}
