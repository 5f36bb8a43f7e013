package query

import "context"

// OrderLookup resolves order metadata the query pipelines need to render
// a report row. It is an external collaborator per the specification's
// scope: the order/project lifecycle lives outside the core engine.
type OrderLookup interface {
	// ProjectName returns the human-readable project name for an order,
	// or ok=false if the order has since been deleted (the NotFound
	// error kind: the caller should skip that candidate and continue).
	ProjectName(ctx context.Context, orderID int64) (name string, ok bool, err error)
}

// NoopOrderLookup resolves nothing. It exists for deployments running the
// memory store with no backing order database, where every candidate is
// simply skipped rather than surfaced with a project name.
type NoopOrderLookup struct{}

// ProjectName implements OrderLookup.
func (NoopOrderLookup) ProjectName(_ context.Context, _ int64) (string, bool, error) {
	return "", false, nil
}
