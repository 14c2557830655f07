package orchestrator

import (
	"fmt"

	"github.com/orbtalk/orb/internal/errorsx"
)

func errDoubleRegister(streamID string) error {
	return errorsx.Wrap(fmt.Errorf("session %q already registered", streamID), errorsx.ReasonSessionDoubleRegister)
}
