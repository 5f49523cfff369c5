// Package access holds the role assignments: a single steward and a set
// of curators. The steward governs policy and funds; curators manage the
// catalog and membership.
package access

import "github.com/xraph/circulation/id"

// Roles is the engine-wide role assignment.
type Roles struct {
	// Steward is the governing account. A nil steward means stewardship
	// was renounced; no account can ever hold the role again.
	Steward id.AccountID `json:"steward"`
	// Renounced records that the steward role was given up. Distinguishes
	// "never had a steward" from "permanently stewardless".
	Renounced bool `json:"renounced"`
	// Curators are accounts allowed to manage catalog and membership.
	Curators []id.AccountID `json:"curators"`
}

// IsSteward reports whether account currently holds the steward role.
func (r *Roles) IsSteward(account id.AccountID) bool {
	return !r.Renounced && !r.Steward.IsNil() && r.Steward == account
}

// IsCurator reports whether account is a curator. The steward is always
// a curator.
func (r *Roles) IsCurator(account id.AccountID) bool {
	if r.IsSteward(account) {
		return true
	}
	for _, c := range r.Curators {
		if c == account {
			return true
		}
	}
	return false
}

// AddCurator appends account if not already present. Returns false when
// the account was already a curator.
func (r *Roles) AddCurator(account id.AccountID) bool {
	for _, c := range r.Curators {
		if c == account {
			return false
		}
	}
	r.Curators = append(r.Curators, account)
	return true
}

// RemoveCurator drops account from the curator set. Returns false when
// the account was not a curator.
func (r *Roles) RemoveCurator(account id.AccountID) bool {
	for i, c := range r.Curators {
		if c == account {
			r.Curators = append(r.Curators[:i], r.Curators[i+1:]...)
			return true
		}
	}
	return false
}
