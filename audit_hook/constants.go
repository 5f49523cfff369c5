package audithook

// Action constants for audit events.
const (
	// Catalog actions
	ActionItemCreated = "item.created"
	ActionItemUpdated = "item.updated"
	ActionItemPaused  = "item.paused"
	ActionUnitsMinted = "units.minted"

	// Loan actions
	ActionLoanOpened   = "loan.opened"
	ActionLoanReturned = "loan.returned"
	ActionLoanExtended = "loan.extended"

	// Deposit actions
	ActionDepositForfeited = "deposit.forfeited"
	ActionPoolWithdrawn    = "pool.withdrawn"

	// Governance actions
	ActionPolicyChanged      = "policy.changed"
	ActionStewardTransferred = "steward.transferred"
	ActionStewardRenounced   = "steward.renounced"

	// Membership actions
	ActionCardIssued  = "card.issued"
	ActionCardRevoked = "card.revoked"
)

// Resource constants for audit events.
const (
	ResourceItem    = "item"
	ResourceLoan    = "loan"
	ResourceDeposit = "deposit"
	ResourcePool    = "pool"
	ResourcePolicy  = "policy"
	ResourceSteward = "steward"
	ResourceCard    = "card"
)

// Category constants for audit events.
const (
	CategoryCatalog    = "catalog"
	CategoryLending    = "lending"
	CategoryEscrow     = "escrow"
	CategoryGovernance = "governance"
	CategoryMembership = "membership"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
