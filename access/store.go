package access

import "context"

type Store interface {
	Get(ctx context.Context) (*Roles, error)
	Put(ctx context.Context, r *Roles) error
}
