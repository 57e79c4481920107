package memory

import (
	"context"

	"github.com/dkeye/octopresence/internal/domain"
	"github.com/rs/zerolog/log"
)

// StatusCache stands in for the shared printer status cache on single-node
// runs, where agents have nowhere to publish status.
type StatusCache struct{}

func (StatusCache) DeleteStatus(_ context.Context, id domain.PrinterID) error {
	log.Debug().Str("module", "adapters.memory").Str("printer", string(id)).Msg("status cleared")
	return nil
}

func (StatusCache) Ping(context.Context) error { return nil }
