package layer

import (
	"errors"

	"github.com/dkeye/octopresence/internal/core"
	"github.com/dkeye/octopresence/internal/domain"
)

type FailureAction int

const (
	NoAction FailureAction = iota
	PruneMember
)

// Policy decides what happens to a group member whose delivery failed.
// It runs after the fan-out; it can never stop delivery to other members.
type Policy interface {
	OnDeliveryFailure(group string, f core.DeliveryFailure) FailureAction
}

// ReportOnly leaves membership alone; stale members age out of the
// liveness window on their own.
type ReportOnly struct{}

func (ReportOnly) OnDeliveryFailure(string, core.DeliveryFailure) FailureAction {
	return NoAction
}

// PruneMissing discards members whose mailbox the transport reports gone.
type PruneMissing struct{}

func (PruneMissing) OnDeliveryFailure(_ string, f core.DeliveryFailure) FailureAction {
	if errors.Is(f.Err, domain.ErrChannelNotFound) {
		return PruneMember
	}
	return NoAction
}
