package policy

import "context"

type Store interface {
	Get(ctx context.Context) (*Policy, error)
	Put(ctx context.Context, p *Policy) error
}
