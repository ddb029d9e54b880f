// Package operations runs the steps of a pool deployment and keeps a report of each.
//
// A step is an Operation with typed input, collaborators and output. ExecuteOperation runs it
// exactly once; steps that submit transactions are never retried. Each execution, failed or
// not, is recorded with the Reporter of the Bundle and later written to the run artifacts.
//
//	b := operations.NewBundle(func() context.Context { return ctx }, lggr, nil)
//	report, err := operations.ExecuteOperation(b, resolveOp, registry, "ethereum:mainnet")
package operations
