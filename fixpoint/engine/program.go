package engine

import (
	"log/slog"

	"github.com/wbrown/janus-fixpoint/fixpoint/annotations"
)

// Program owns an evaluation context and the blocks attached to it. It is
// the driver-facing surface: feed it raw changes, mutate its block set,
// subscribe watchers, and read back collapsed exports.
type Program struct {
	Name string
	*Context
}

// NewProgram creates a program with a fresh context.
func NewProgram(name string) *Program {
	return &Program{Name: name, Context: NewContext(nil, nil)}
}

// NewTracedProgram creates a program whose context reports annotation
// events to the handler and diagnostics to the logger.
func NewTracedProgram(name string, logger *slog.Logger, handler annotations.Handler) *Program {
	return &Program{Name: name, Context: NewContext(logger, handler)}
}
