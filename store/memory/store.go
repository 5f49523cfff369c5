// Package memory provides an in-process Store for tests, simulations,
// and single-run tools. Nothing survives process exit.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/circulation"
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

type Store struct {
	mu sync.RWMutex

	// Catalog storage; nextItemID assigns monotonic ids.
	items      map[catalog.ItemID]*catalog.Item
	nextItemID catalog.ItemID

	// Loan storage keyed by "borrower/item"
	loans map[string]*loan.Loan

	// Escrow storage keyed by loan id, plus the forfeiture pool
	deposits map[string]*escrow.Entry
	pool     types.Money

	// Inventory keyed by "account/item"
	holdings map[string]*inventory.Holding

	// Single-record policy and roles
	policy *policy.Policy
	roles  *access.Roles

	// Membership cards keyed by card id
	cards map[string]*member.Card
}

func New() *Store {
	return &Store{
		items:    make(map[catalog.ItemID]*catalog.Item),
		loans:    make(map[string]*loan.Loan),
		deposits: make(map[string]*escrow.Entry),
		holdings: make(map[string]*inventory.Holding),
		cards:    make(map[string]*member.Card),
	}
}

func loanKey(k loan.Key) string {
	return k.Borrower.String() + "/" + k.Item.String()
}

func holdingKey(account id.AccountID, itemID catalog.ItemID) string {
	return account.String() + "/" + itemID.String()
}

func copyItem(it *catalog.Item) *catalog.Item {
	c := *it
	if it.Contributors != nil {
		c.Contributors = append([]string(nil), it.Contributors...)
	}
	if it.Metadata != nil {
		c.Metadata = make(map[string]string, len(it.Metadata))
		for k, v := range it.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func copyLoan(l *loan.Loan) *loan.Loan {
	c := *l
	return &c
}

func copyRoles(r *access.Roles) *access.Roles {
	c := *r
	if r.Curators != nil {
		c.Curators = append([]id.AccountID(nil), r.Curators...)
	}
	return &c
}

// ──────────────────────────────────────────────────
// Catalog
// ──────────────────────────────────────────────────

func (s *Store) CreateItem(_ context.Context, it *catalog.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextItemID++
	it.ID = s.nextItemID
	s.items[it.ID] = copyItem(it)
	return nil
}

func (s *Store) GetItem(_ context.Context, itemID catalog.ItemID) (*catalog.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if it, ok := s.items[itemID]; ok {
		return copyItem(it), nil
	}
	return nil, circulation.ErrItemNotFound
}

func (s *Store) ListItems(_ context.Context, opts catalog.ListOpts) ([]*catalog.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*catalog.Item, 0)
	for _, it := range s.items {
		if it.Paused && !opts.IncludePaused {
			continue
		}
		if opts.Author != "" && it.Author != opts.Author {
			continue
		}
		result = append(result, copyItem(it))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateItem(_ context.Context, it *catalog.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[it.ID]; !ok {
		return circulation.ErrItemNotFound
	}
	s.items[it.ID] = copyItem(it)
	return nil
}

func (s *Store) SetItemPaused(_ context.Context, itemID catalog.ItemID, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[itemID]
	if !ok {
		return circulation.ErrItemNotFound
	}
	it.Paused = paused
	it.Touch()
	return nil
}

// ──────────────────────────────────────────────────
// Loans
// ──────────────────────────────────────────────────

func (s *Store) CreateLoan(_ context.Context, l *loan.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := loanKey(l.Key())
	if _, exists := s.loans[key]; exists {
		return circulation.ErrLoanExists
	}
	s.loans[key] = copyLoan(l)
	return nil
}

func (s *Store) GetLoan(_ context.Context, key loan.Key) (*loan.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if l, ok := s.loans[loanKey(key)]; ok {
		return copyLoan(l), nil
	}
	return nil, circulation.ErrLoanNotFound
}

func (s *Store) GetLoanByID(_ context.Context, loanID id.LoanID) (*loan.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.loans {
		if l.ID == loanID {
			return copyLoan(l), nil
		}
	}
	return nil, circulation.ErrLoanNotFound
}

func (s *Store) ListLoans(_ context.Context, opts loan.ListOpts) ([]*loan.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*loan.Loan, 0)
	for _, l := range s.loans {
		if !opts.Borrower.IsNil() && l.Borrower != opts.Borrower {
			continue
		}
		if !opts.Item.IsZero() && l.Item != opts.Item {
			continue
		}
		if !opts.DueBefore.IsZero() && !l.DueDate.Before(opts.DueBefore) {
			continue
		}
		result = append(result, copyLoan(l))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].OpenedAt.Before(result[j].OpenedAt) })

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateLoan(_ context.Context, l *loan.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := loanKey(l.Key())
	if _, ok := s.loans[key]; !ok {
		return circulation.ErrLoanNotFound
	}
	s.loans[key] = copyLoan(l)
	return nil
}

func (s *Store) DeleteLoan(_ context.Context, key loan.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := loanKey(key)
	if _, ok := s.loans[k]; !ok {
		return circulation.ErrLoanNotFound
	}
	delete(s.loans, k)
	return nil
}

func (s *Store) CountLoansByItem(_ context.Context, itemID catalog.ItemID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, l := range s.loans {
		if l.Item == itemID {
			count++
		}
	}
	return count, nil
}

func (s *Store) ListLoansDueBefore(_ context.Context, cutoff time.Time) ([]*loan.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*loan.Loan, 0)
	for _, l := range s.loans {
		if l.DueDate.Before(cutoff) {
			result = append(result, copyLoan(l))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DueDate.Before(result[j].DueDate) })
	return result, nil
}

// ──────────────────────────────────────────────────
// Escrow and pool
// ──────────────────────────────────────────────────

func (s *Store) LockDeposit(_ context.Context, e *escrow.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := e.LoanID.String()
	if _, exists := s.deposits[key]; exists {
		return circulation.ErrAlreadyExists
	}
	c := *e
	s.deposits[key] = &c
	return nil
}

func (s *Store) GetDeposit(_ context.Context, loanID id.LoanID) (*escrow.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.deposits[loanID.String()]; ok {
		c := *e
		return &c, nil
	}
	return nil, circulation.ErrEscrowNotFound
}

func (s *Store) ReleaseDeposit(_ context.Context, loanID id.LoanID) (*escrow.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := loanID.String()
	e, ok := s.deposits[key]
	if !ok {
		return nil, circulation.ErrEscrowNotFound
	}
	delete(s.deposits, key)
	return e, nil
}

func (s *Store) ForfeitDeposit(_ context.Context, loanID id.LoanID) (*escrow.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := loanID.String()
	e, ok := s.deposits[key]
	if !ok {
		return nil, circulation.ErrEscrowNotFound
	}
	delete(s.deposits, key)

	s.creditPool(e.Amount)
	return e, nil
}

func (s *Store) PoolBalance(_ context.Context) (types.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pool, nil
}

func (s *Store) AddToPool(_ context.Context, delta types.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool.Currency != "" && s.pool.Currency != delta.Currency {
		return circulation.ErrCurrencyMismatch
	}
	if s.pool.Amount+delta.Amount < 0 {
		return circulation.ErrPoolInsufficient
	}
	s.creditPool(delta)
	return nil
}

// creditPool assumes the write lock is held.
func (s *Store) creditPool(delta types.Money) {
	if s.pool.Currency == "" {
		s.pool = delta
		return
	}
	s.pool = s.pool.Add(delta)
}

func (s *Store) TotalLocked(_ context.Context) (types.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total types.Money
	for _, e := range s.deposits {
		if total.Currency == "" {
			total = e.Amount
			continue
		}
		total = total.Add(e.Amount)
	}
	return total, nil
}

// ──────────────────────────────────────────────────
// Inventory
// ──────────────────────────────────────────────────

func (s *Store) UnitBalance(_ context.Context, account id.AccountID, itemID catalog.ItemID) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if h, ok := s.holdings[holdingKey(account, itemID)]; ok {
		return h.Units, nil
	}
	return 0, nil
}

func (s *Store) MintUnits(_ context.Context, account id.AccountID, itemID catalog.ItemID, units uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.credit(account, itemID, units)
	return nil
}

func (s *Store) TransferUnits(_ context.Context, from, to id.AccountID, itemID catalog.ItemID, units uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.holdings[holdingKey(from, itemID)]
	if !ok || src.Units < units {
		return circulation.ErrInsufficientUnits
	}

	src.Units -= units
	src.Touch()
	s.credit(to, itemID, units)
	return nil
}

// credit assumes the write lock is held.
func (s *Store) credit(account id.AccountID, itemID catalog.ItemID, units uint64) {
	key := holdingKey(account, itemID)
	if h, ok := s.holdings[key]; ok {
		h.Units += units
		h.Touch()
		return
	}
	s.holdings[key] = &inventory.Holding{
		Entity:  types.NewEntity(),
		Account: account,
		Item:    itemID,
		Units:   units,
	}
}

func (s *Store) Holdings(_ context.Context, account id.AccountID) ([]*inventory.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*inventory.Holding, 0)
	for _, h := range s.holdings {
		if h.Account == account && h.Units > 0 {
			c := *h
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Item < result[j].Item })
	return result, nil
}

// ──────────────────────────────────────────────────
// Policy and roles
// ──────────────────────────────────────────────────

func (s *Store) GetPolicy(_ context.Context) (*policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.policy == nil {
		return nil, circulation.ErrNotFound
	}
	c := *s.policy
	return &c, nil
}

func (s *Store) PutPolicy(_ context.Context, p *policy.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *p
	s.policy = &c
	return nil
}

func (s *Store) GetRoles(_ context.Context) (*access.Roles, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.roles == nil {
		return nil, circulation.ErrNotFound
	}
	return copyRoles(s.roles), nil
}

func (s *Store) PutRoles(_ context.Context, r *access.Roles) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roles = copyRoles(r)
	return nil
}

// ──────────────────────────────────────────────────
// Membership cards
// ──────────────────────────────────────────────────

func (s *Store) CreateCard(_ context.Context, c *member.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := c.ID.String()
	if _, exists := s.cards[key]; exists {
		return circulation.ErrAlreadyExists
	}
	cp := *c
	s.cards[key] = &cp
	return nil
}

func (s *Store) GetCard(_ context.Context, cardID id.CardID) (*member.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.cards[cardID.String()]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, circulation.ErrCardNotFound
}

func (s *Store) GetActiveCardByAccount(_ context.Context, account id.AccountID) (*member.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.cards {
		if c.Account == account && c.Active() {
			cp := *c
			return &cp, nil
		}
	}
	return nil, circulation.ErrCardNotFound
}

func (s *Store) ListCards(_ context.Context, opts member.ListOpts) ([]*member.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*member.Card, 0)
	for _, c := range s.cards {
		if !opts.Account.IsNil() && c.Account != opts.Account {
			continue
		}
		if !c.Active() && !opts.IncludeRevoked {
			continue
		}
		cp := *c
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].IssuedAt.Before(result[j].IssuedAt) })

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateCard(_ context.Context, c *member.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := c.ID.String()
	if _, ok := s.cards[key]; !ok {
		return circulation.ErrCardNotFound
	}
	cp := *c
	s.cards[key] = &cp
	return nil
}

// ──────────────────────────────────────────────────
// Core
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error { return nil }
func (s *Store) Ping(_ context.Context) error    { return nil }
func (s *Store) Close() error                    { return nil }

func paginate[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
