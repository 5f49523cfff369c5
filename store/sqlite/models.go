package sqlite

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/circulation/access"
	"github.com/xraph/circulation/catalog"
	"github.com/xraph/circulation/escrow"
	"github.com/xraph/circulation/id"
	"github.com/xraph/circulation/inventory"
	"github.com/xraph/circulation/loan"
	"github.com/xraph/circulation/member"
	"github.com/xraph/circulation/policy"
	"github.com/xraph/circulation/types"
)

// SQLite stores JSON payloads as TEXT; models mirror the postgres backend
// otherwise.

// ==================== Item models ====================

type itemModel struct {
	grove.BaseModel `grove:"table:circ_items"`

	ID            int64     `grove:"id,pk"`
	Title         string    `grove:"title"`
	Author        string    `grove:"author"`
	ContentURI    string    `grove:"content_uri"`
	License       string    `grove:"license"`
	ManifestURI   string    `grove:"manifest_uri"`
	ProvenanceURI string    `grove:"provenance_uri"`
	Contributors  string    `grove:"contributors"`
	Paused        bool      `grove:"paused"`
	CreatedBy     string    `grove:"created_by"`
	Metadata      string    `grove:"metadata"`
	CreatedAt     time.Time `grove:"created_at"`
	UpdatedAt     time.Time `grove:"updated_at"`
}

func toItemModel(it *catalog.Item) *itemModel {
	contributors, _ := json.Marshal(it.Contributors) //nolint:errcheck // best-effort
	metadata, _ := json.Marshal(it.Metadata)         //nolint:errcheck // best-effort

	return &itemModel{
		ID:            int64(it.ID),
		Title:         it.Title,
		Author:        it.Author,
		ContentURI:    it.ContentURI,
		License:       it.License,
		ManifestURI:   it.ManifestURI,
		ProvenanceURI: it.ProvenanceURI,
		Contributors:  string(contributors),
		Paused:        it.Paused,
		CreatedBy:     it.CreatedBy.String(),
		Metadata:      string(metadata),
		CreatedAt:     it.CreatedAt,
		UpdatedAt:     it.UpdatedAt,
	}
}

func fromItemModel(m *itemModel) (*catalog.Item, error) {
	createdBy, err := parseOptionalAccount(m.CreatedBy)
	if err != nil {
		return nil, err
	}

	var contributors []string
	if m.Contributors != "" {
		_ = json.Unmarshal([]byte(m.Contributors), &contributors) //nolint:errcheck // best-effort
	}
	var metadata map[string]string
	if m.Metadata != "" {
		_ = json.Unmarshal([]byte(m.Metadata), &metadata) //nolint:errcheck // best-effort
	}

	return &catalog.Item{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            catalog.ItemID(m.ID),
		Title:         m.Title,
		Author:        m.Author,
		ContentURI:    m.ContentURI,
		License:       m.License,
		ManifestURI:   m.ManifestURI,
		ProvenanceURI: m.ProvenanceURI,
		Contributors:  contributors,
		Paused:        m.Paused,
		CreatedBy:     createdBy,
		Metadata:      metadata,
	}, nil
}

// ==================== Loan models ====================

type loanModel struct {
	grove.BaseModel `grove:"table:circ_loans"`

	Borrower        string    `grove:"borrower,pk"`
	ItemID          int64     `grove:"item_id,pk"`
	LoanID          string    `grove:"loan_id"`
	DueDate         time.Time `grove:"due_date"`
	DepositCents    int64     `grove:"deposit_cents"`
	DepositCurrency string    `grove:"deposit_currency"`
	ExtensionsUsed  int       `grove:"extensions_used"`
	OpenedAt        time.Time `grove:"opened_at"`
	CreatedAt       time.Time `grove:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"`
}

func toLoanModel(l *loan.Loan) *loanModel {
	return &loanModel{
		Borrower:        l.Borrower.String(),
		ItemID:          int64(l.Item),
		LoanID:          l.ID.String(),
		DueDate:         l.DueDate,
		DepositCents:    l.Deposit.Amount,
		DepositCurrency: l.Deposit.Currency,
		ExtensionsUsed:  l.ExtensionsUsed,
		OpenedAt:        l.OpenedAt,
		CreatedAt:       l.CreatedAt,
		UpdatedAt:       l.UpdatedAt,
	}
}

func fromLoanModel(m *loanModel) (*loan.Loan, error) {
	borrower, err := id.ParseAccountID(m.Borrower)
	if err != nil {
		return nil, err
	}
	loanID, err := id.ParseLoanID(m.LoanID)
	if err != nil {
		return nil, err
	}

	return &loan.Loan{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             loanID,
		Borrower:       borrower,
		Item:           catalog.ItemID(m.ItemID),
		DueDate:        m.DueDate,
		Deposit:        types.New(m.DepositCents, m.DepositCurrency),
		ExtensionsUsed: m.ExtensionsUsed,
		OpenedAt:       m.OpenedAt,
	}, nil
}

// ==================== Escrow models ====================

type escrowModel struct {
	grove.BaseModel `grove:"table:circ_escrow"`

	LoanID         string    `grove:"loan_id,pk"`
	Borrower       string    `grove:"borrower"`
	AmountCents    int64     `grove:"amount_cents"`
	AmountCurrency string    `grove:"amount_currency"`
	CreatedAt      time.Time `grove:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"`
}

func toEscrowModel(e *escrow.Entry) *escrowModel {
	return &escrowModel{
		LoanID:         e.LoanID.String(),
		Borrower:       e.Borrower.String(),
		AmountCents:    e.Amount.Amount,
		AmountCurrency: e.Amount.Currency,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func fromEscrowModel(m *escrowModel) (*escrow.Entry, error) {
	loanID, err := id.ParseLoanID(m.LoanID)
	if err != nil {
		return nil, err
	}
	borrower, err := id.ParseAccountID(m.Borrower)
	if err != nil {
		return nil, err
	}

	return &escrow.Entry{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		LoanID:   loanID,
		Borrower: borrower,
		Amount:   types.New(m.AmountCents, m.AmountCurrency),
	}, nil
}

// ==================== Holding models ====================

type holdingModel struct {
	grove.BaseModel `grove:"table:circ_holdings"`

	Account   string    `grove:"account,pk"`
	ItemID    int64     `grove:"item_id,pk"`
	Units     int64     `grove:"units"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func fromHoldingModel(m *holdingModel) (*inventory.Holding, error) {
	account, err := id.ParseAccountID(m.Account)
	if err != nil {
		return nil, err
	}

	return &inventory.Holding{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Account: account,
		Item:    catalog.ItemID(m.ItemID),
		Units:   uint64(m.Units),
	}, nil
}

// ==================== Policy models ====================

type policyModel struct {
	grove.BaseModel `grove:"table:circ_policy"`

	ID              int       `grove:"id,pk"`
	LoanDurationNS  int64     `grove:"loan_duration_ns"`
	DepositCents    int64     `grove:"deposit_cents"`
	DepositCurrency string    `grove:"deposit_currency"`
	GraceNS         int64     `grove:"grace_ns"`
	ExtensionNS     int64     `grove:"extension_ns"`
	MaxExtensions   int       `grove:"max_extensions"`
	Branch          string    `grove:"branch"`
	CreatedAt       time.Time `grove:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"`
}

func toPolicyModel(p *policy.Policy) *policyModel {
	return &policyModel{
		ID:              1,
		LoanDurationNS:  int64(p.LoanDuration),
		DepositCents:    p.DepositAmount.Amount,
		DepositCurrency: p.DepositAmount.Currency,
		GraceNS:         int64(p.GracePeriod),
		ExtensionNS:     int64(p.ExtensionDuration),
		MaxExtensions:   p.MaxExtensions,
		Branch:          p.Branch.String(),
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func fromPolicyModel(m *policyModel) (*policy.Policy, error) {
	branch, err := parseOptionalAccount(m.Branch)
	if err != nil {
		return nil, err
	}

	return &policy.Policy{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		LoanDuration:      time.Duration(m.LoanDurationNS),
		DepositAmount:     types.New(m.DepositCents, m.DepositCurrency),
		GracePeriod:       time.Duration(m.GraceNS),
		ExtensionDuration: time.Duration(m.ExtensionNS),
		MaxExtensions:     m.MaxExtensions,
		Branch:            branch,
	}, nil
}

// ==================== Role models ====================

type rolesModel struct {
	grove.BaseModel `grove:"table:circ_roles"`

	ID        int       `grove:"id,pk"`
	Steward   string    `grove:"steward"`
	Renounced bool      `grove:"renounced"`
	Curators  string    `grove:"curators"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toRolesModel(r *access.Roles) *rolesModel {
	curators := make([]string, len(r.Curators))
	for i, c := range r.Curators {
		curators[i] = c.String()
	}
	raw, _ := json.Marshal(curators) //nolint:errcheck // best-effort

	return &rolesModel{
		ID:        1,
		Steward:   r.Steward.String(),
		Renounced: r.Renounced,
		Curators:  string(raw),
	}
}

func fromRolesModel(m *rolesModel) (*access.Roles, error) {
	steward, err := parseOptionalAccount(m.Steward)
	if err != nil {
		return nil, err
	}

	var curatorStrs []string
	if m.Curators != "" {
		_ = json.Unmarshal([]byte(m.Curators), &curatorStrs) //nolint:errcheck // best-effort
	}
	curators := make([]id.AccountID, 0, len(curatorStrs))
	for _, s := range curatorStrs {
		c, err := id.ParseAccountID(s)
		if err != nil {
			return nil, err
		}
		curators = append(curators, c)
	}

	return &access.Roles{
		Steward:   steward,
		Renounced: m.Renounced,
		Curators:  curators,
	}, nil
}

// ==================== Card models ====================

type cardModel struct {
	grove.BaseModel `grove:"table:circ_cards"`

	ID        string     `grove:"id,pk"`
	Account   string     `grove:"account"`
	Tier      string     `grove:"tier"`
	IssuedBy  string     `grove:"issued_by"`
	IssuedAt  time.Time  `grove:"issued_at"`
	RevokedAt *time.Time `grove:"revoked_at"`
	CreatedAt time.Time  `grove:"created_at"`
	UpdatedAt time.Time  `grove:"updated_at"`
}

func toCardModel(c *member.Card) *cardModel {
	return &cardModel{
		ID:        c.ID.String(),
		Account:   c.Account.String(),
		Tier:      c.Tier,
		IssuedBy:  c.IssuedBy.String(),
		IssuedAt:  c.IssuedAt,
		RevokedAt: c.RevokedAt,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func fromCardModel(m *cardModel) (*member.Card, error) {
	cardID, err := id.ParseCardID(m.ID)
	if err != nil {
		return nil, err
	}
	account, err := id.ParseAccountID(m.Account)
	if err != nil {
		return nil, err
	}
	issuedBy, err := parseOptionalAccount(m.IssuedBy)
	if err != nil {
		return nil, err
	}

	return &member.Card{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:        cardID,
		Account:   account,
		Tier:      m.Tier,
		IssuedBy:  issuedBy,
		IssuedAt:  m.IssuedAt,
		RevokedAt: m.RevokedAt,
	}, nil
}

// parseOptionalAccount treats the empty string as the nil account.
func parseOptionalAccount(s string) (id.AccountID, error) {
	if s == "" {
		return id.Nil, nil
	}
	return id.ParseAccountID(s)
}
