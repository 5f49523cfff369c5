// Package sqlite provides the SQLite Store backend via Grove ORM.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	circulation "github.com/xraph/circulation"
	"github.com/xraph/circulation/access"
	"github.com/xraph/circulation/catalog"
	"github.com/xraph/circulation/escrow"
	"github.com/xraph/circulation/id"
	"github.com/xraph/circulation/inventory"
	"github.com/xraph/circulation/loan"
	"github.com/xraph/circulation/member"
	"github.com/xraph/circulation/policy"
	circstore "github.com/xraph/circulation/store"
	"github.com/xraph/circulation/types"
)

// compile-time interface check
var _ circstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("circulation/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("circulation/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Catalog Store ====================

func (s *Store) CreateItem(ctx context.Context, it *catalog.Item) error {
	m := toItemModel(it)

	// The database assigns the monotonic item id.
	var newID int64
	err := s.sdb.NewRaw(`
		INSERT INTO circ_items
			(title, author, content_uri, license, manifest_uri, provenance_uri,
			 contributors, paused, created_by, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, m.Title, m.Author, m.ContentURI, m.License, m.ManifestURI, m.ProvenanceURI,
		m.Contributors, m.Paused, m.CreatedBy, m.Metadata, m.CreatedAt, m.UpdatedAt,
	).Scan(ctx, &newID)
	if err != nil {
		return err
	}

	it.ID = catalog.ItemID(newID)
	return nil
}

func (s *Store) GetItem(ctx context.Context, itemID catalog.ItemID) (*catalog.Item, error) {
	m := new(itemModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", int64(itemID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, circulation.ErrItemNotFound
		}
		return nil, err
	}
	return fromItemModel(m)
}

func (s *Store) ListItems(ctx context.Context, opts catalog.ListOpts) ([]*catalog.Item, error) {
	var models []itemModel
	q := s.sdb.NewSelect(&models)

	if !opts.IncludePaused {
		q = q.Where("paused = 0")
	}
	if opts.Author != "" {
		q = q.Where("author = ?", opts.Author)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*catalog.Item, len(models))
	for i := range models {
		it, err := fromItemModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = it
	}
	return result, nil
}

func (s *Store) UpdateItem(ctx context.Context, it *catalog.Item) error {
	m := toItemModel(it)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return circulation.ErrItemNotFound
	}
	return nil
}

func (s *Store) SetItemPaused(ctx context.Context, itemID catalog.ItemID, paused bool) error {
	res, err := s.sdb.NewUpdate((*itemModel)(nil)).
		Set("paused = ?", paused).
		Set("updated_at = ?", now()).
		Where("id = ?", int64(itemID)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return circulation.ErrItemNotFound
	}
	return nil
}

// ==================== Loan Store ====================

func (s *Store) CreateLoan(ctx context.Context, l *loan.Loan) error {
	m := toLoanModel(l)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetLoan(ctx context.Context, key loan.Key) (*loan.Loan, error) {
	m := new(loanModel)
	err := s.sdb.NewSelect(m).
		Where("borrower = ?", key.Borrower.String()).
		Where("item_id = ?", int64(key.Item)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, circulation.ErrLoanNotFound
		}
		return nil, err
	}
	return fromLoanModel(m)
}

func (s *Store) GetLoanByID(ctx context.Context, loanID id.LoanID) (*loan.Loan, error) {
	m := new(loanModel)
	err := s.sdb.NewSelect(m).
		Where("loan_id = ?", loanID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, circulation.ErrLoanNotFound
		}
		return nil, err
	}
	return fromLoanModel(m)
}

func (s *Store) ListLoans(ctx context.Context, opts loan.ListOpts) ([]*loan.Loan, error) {
	var models []loanModel
	q := s.sdb.NewSelect(&models)

	if !opts.Borrower.IsNil() {
		q = q.Where("borrower = ?", opts.Borrower.String())
	}
	if !opts.Item.IsZero() {
		q = q.Where("item_id = ?", int64(opts.Item))
	}
	if !opts.DueBefore.IsZero() {
		q = q.Where("due_date < ?", opts.DueBefore)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("opened_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*loan.Loan, len(models))
	for i := range models {
		l, err := fromLoanModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = l
	}
	return result, nil
}

func (s *Store) UpdateLoan(ctx context.Context, l *loan.Loan) error {
	m := toLoanModel(l)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return circulation.ErrLoanNotFound
	}
	return nil
}

func (s *Store) DeleteLoan(ctx context.Context, key loan.Key) error {
	res, err := s.sdb.NewDelete((*loanModel)(nil)).
		Where("borrower = ?", key.Borrower.String()).
		Where("item_id = ?", int64(key.Item)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return circulation.ErrLoanNotFound
	}
	return nil
}

func (s *Store) CountLoansByItem(ctx context.Context, itemID catalog.ItemID) (int, error) {
	var count int
	err := s.sdb.NewRaw(`
		SELECT COUNT(*) FROM circ_loans WHERE item_id = ?
	`, int64(itemID)).Scan(ctx, &count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) ListLoansDueBefore(ctx context.Context, cutoff time.Time) ([]*loan.Loan, error) {
	var models []loanModel
	err := s.sdb.NewSelect(&models).
		Where("due_date < ?", cutoff).
		OrderExpr("due_date ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*loan.Loan, len(models))
	for i := range models {
		l, err := fromLoanModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = l
	}
	return result, nil
}

// ==================== Escrow Store ====================

func (s *Store) LockDeposit(ctx context.Context, e *escrow.Entry) error {
	m := toEscrowModel(e)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetDeposit(ctx context.Context, loanID id.LoanID) (*escrow.Entry, error) {
	m := new(escrowModel)
	err := s.sdb.NewSelect(m).
		Where("loan_id = ?", loanID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, circulation.ErrEscrowNotFound
		}
		return nil, err
	}
	return fromEscrowModel(m)
}

func (s *Store) ReleaseDeposit(ctx context.Context, loanID id.LoanID) (*escrow.Entry, error) {
	entry, err := s.GetDeposit(ctx, loanID)
	if err != nil {
		return nil, err
	}

	res, err := s.sdb.NewDelete((*escrowModel)(nil)).
		Where("loan_id = ?", loanID.String()).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, circulation.ErrEscrowNotFound
	}
	return entry, nil
}

func (s *Store) ForfeitDeposit(ctx context.Context, loanID id.LoanID) (*escrow.Entry, error) {
	entry, err := s.ReleaseDeposit(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if err := s.AddToPool(ctx, entry.Amount); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Store) PoolBalance(ctx context.Context) (types.Money, error) {
	var cents int64
	var currency string
	err := s.sdb.NewRaw(`
		SELECT amount_cents, currency FROM circ_pool WHERE id = 1
	`).Scan(ctx, &cents, &currency)
	if err != nil {
		return types.Money{}, err
	}
	return types.New(cents, currency), nil
}

func (s *Store) AddToPool(ctx context.Context, delta types.Money) error {
	pool, err := s.PoolBalance(ctx)
	if err != nil {
		return err
	}
	if pool.Currency != "" && pool.Currency != delta.Currency {
		return circulation.ErrCurrencyMismatch
	}
	if pool.Amount+delta.Amount < 0 {
		return circulation.ErrPoolInsufficient
	}

	_, err = s.sdb.NewRaw(`
		UPDATE circ_pool SET amount_cents = amount_cents + ?, currency = ? WHERE id = 1
	`, delta.Amount, delta.Currency).Exec(ctx)
	return err
}

func (s *Store) TotalLocked(ctx context.Context) (types.Money, error) {
	var cents int64
	var currency string
	err := s.sdb.NewRaw(`
		SELECT COALESCE(SUM(amount_cents), 0), COALESCE(MAX(amount_currency), '')
		FROM circ_escrow
	`).Scan(ctx, &cents, &currency)
	if err != nil {
		return types.Money{}, err
	}
	return types.New(cents, currency), nil
}

// ==================== Inventory Store ====================

func (s *Store) UnitBalance(ctx context.Context, account id.AccountID, itemID catalog.ItemID) (uint64, error) {
	var units int64
	err := s.sdb.NewRaw(`
		SELECT COALESCE(SUM(units), 0) FROM circ_holdings
		WHERE account = ? AND item_id = ?
	`, account.String(), int64(itemID)).Scan(ctx, &units)
	if err != nil {
		return 0, err
	}
	return uint64(units), nil
}

func (s *Store) MintUnits(ctx context.Context, account id.AccountID, itemID catalog.ItemID, units uint64) error {
	t := now()
	_, err := s.sdb.NewRaw(`
		INSERT INTO circ_holdings (account, item_id, units, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (account, item_id)
		DO UPDATE SET units = circ_holdings.units + excluded.units, updated_at = excluded.updated_at
	`, account.String(), int64(itemID), int64(units), t, t).Exec(ctx)
	return err
}

func (s *Store) TransferUnits(ctx context.Context, from, to id.AccountID, itemID catalog.ItemID, units uint64) error {
	res, err := s.sdb.NewRaw(`
		UPDATE circ_holdings SET units = units - ?, updated_at = ?
		WHERE account = ? AND item_id = ? AND units >= ?
	`, int64(units), now(), from.String(), int64(itemID), int64(units)).Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return circulation.ErrInsufficientUnits
	}

	return s.MintUnits(ctx, to, itemID, units)
}

func (s *Store) Holdings(ctx context.Context, account id.AccountID) ([]*inventory.Holding, error) {
	var models []holdingModel
	err := s.sdb.NewSelect(&models).
		Where("account = ?", account.String()).
		Where("units > 0").
		OrderExpr("item_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*inventory.Holding, len(models))
	for i := range models {
		h, err := fromHoldingModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = h
	}
	return result, nil
}

// ==================== Policy Store ====================

func (s *Store) GetPolicy(ctx context.Context) (*policy.Policy, error) {
	m := new(policyModel)
	err := s.sdb.NewSelect(m).
		Where("id = 1").
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, circulation.ErrNotFound
		}
		return nil, err
	}
	return fromPolicyModel(m)
}

func (s *Store) PutPolicy(ctx context.Context, p *policy.Policy) error {
	m := toPolicyModel(p)
	m.UpdatedAt = now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = m.UpdatedAt
	}
	_, err := s.sdb.NewRaw(`
		INSERT INTO circ_policy
			(id, loan_duration_ns, deposit_cents, deposit_currency, grace_ns,
			 extension_ns, max_extensions, branch, created_at, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			loan_duration_ns = excluded.loan_duration_ns,
			deposit_cents = excluded.deposit_cents,
			deposit_currency = excluded.deposit_currency,
			grace_ns = excluded.grace_ns,
			extension_ns = excluded.extension_ns,
			max_extensions = excluded.max_extensions,
			branch = excluded.branch,
			updated_at = excluded.updated_at
	`, m.LoanDurationNS, m.DepositCents, m.DepositCurrency, m.GraceNS,
		m.ExtensionNS, m.MaxExtensions, m.Branch, m.CreatedAt, m.UpdatedAt,
	).Exec(ctx)
	return err
}

// ==================== Role Store ====================

func (s *Store) GetRoles(ctx context.Context) (*access.Roles, error) {
	m := new(rolesModel)
	err := s.sdb.NewSelect(m).
		Where("id = 1").
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, circulation.ErrNotFound
		}
		return nil, err
	}
	return fromRolesModel(m)
}

func (s *Store) PutRoles(ctx context.Context, r *access.Roles) error {
	m := toRolesModel(r)
	t := now()
	_, err := s.sdb.NewRaw(`
		INSERT INTO circ_roles (id, steward, renounced, curators, created_at, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			steward = excluded.steward,
			renounced = excluded.renounced,
			curators = excluded.curators,
			updated_at = excluded.updated_at
	`, m.Steward, m.Renounced, m.Curators, t, t).Exec(ctx)
	return err
}

// ==================== Card Store ====================

func (s *Store) CreateCard(ctx context.Context, c *member.Card) error {
	m := toCardModel(c)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetCard(ctx context.Context, cardID id.CardID) (*member.Card, error) {
	m := new(cardModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", cardID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, circulation.ErrCardNotFound
		}
		return nil, err
	}
	return fromCardModel(m)
}

func (s *Store) GetActiveCardByAccount(ctx context.Context, account id.AccountID) (*member.Card, error) {
	m := new(cardModel)
	err := s.sdb.NewSelect(m).
		Where("account = ?", account.String()).
		Where("revoked_at IS NULL").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, circulation.ErrCardNotFound
		}
		return nil, err
	}
	return fromCardModel(m)
}

func (s *Store) ListCards(ctx context.Context, opts member.ListOpts) ([]*member.Card, error) {
	var models []cardModel
	q := s.sdb.NewSelect(&models)

	if !opts.Account.IsNil() {
		q = q.Where("account = ?", opts.Account.String())
	}
	if !opts.IncludeRevoked {
		q = q.Where("revoked_at IS NULL")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("issued_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*member.Card, len(models))
	for i := range models {
		c, err := fromCardModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

func (s *Store) UpdateCard(ctx context.Context, c *member.Card) error {
	m := toCardModel(c)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return circulation.ErrCardNotFound
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
