package operations

import (
	"context"

	"github.com/Masterminds/semver/v3"

	"github.com/stableswap-ng/pool-deployer/pkg/logger"
)

// Bundle is what every step of a run shares. Build it with NewBundle.
type Bundle struct {
	Logger   logger.Logger
	ctx      func() context.Context
	reporter Reporter
}

// NewBundle returns a bundle for one run. A nil reporter is replaced by a MemoryReporter.
func NewBundle(ctx func() context.Context, lggr logger.Logger, reporter Reporter) Bundle {
	if reporter == nil {
		reporter = NewMemoryReporter()
	}

	return Bundle{Logger: lggr, ctx: ctx, reporter: reporter}
}

// Context returns the context of the run.
func (b Bundle) Context() context.Context {
	return b.ctx()
}

func (b Bundle) Reporter() Reporter {
	return b.reporter
}

// Handler performs a step. DEP carries the collaborators the step needs, e.g. the executor.
type Handler[IN, OUT, DEP any] func(b Bundle, deps DEP, input IN) (OUT, error)

// Definition names a step in reports and logs.
type Definition struct {
	ID          string          `json:"id"`
	Version     *semver.Version `json:"version"`
	Description string          `json:"description"`
}

// Operation is one step of a deployment. A step sends at most one transaction.
type Operation[IN, OUT, DEP any] struct {
	def     Definition
	handler Handler[IN, OUT, DEP]
}

func NewOperation[IN, OUT, DEP any](
	id string, version *semver.Version, description string, handler Handler[IN, OUT, DEP],
) *Operation[IN, OUT, DEP] {
	return &Operation[IN, OUT, DEP]{
		def:     Definition{ID: id, Version: version, Description: description},
		handler: handler,
	}
}

func (o *Operation[IN, OUT, DEP]) ID() string {
	return o.def.ID
}

func (o *Operation[IN, OUT, DEP]) Def() Definition {
	return o.def
}

func (o *Operation[IN, OUT, DEP]) run(b Bundle, deps DEP, input IN) (OUT, error) {
	b.Logger.Infow("Running step", "step", o.def.ID, "version", o.def.Version.String())

	return o.handler(b, deps, input)
}
