package circulation

import "github.com/xraph/circulation/id"

// ID is the primary identifier type for all Circulation entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
