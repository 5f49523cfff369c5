// Package mongo provides the MongoDB Store backend via Grove ORM.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

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

// Collection name constants.
const (
	colItems    = "circ_items"
	colLoans    = "circ_loans"
	colEscrow   = "circ_escrow"
	colPool     = "circ_pool"
	colHoldings = "circ_holdings"
	colPolicy   = "circ_policy"
	colRoles    = "circ_roles"
	colCards    = "circ_cards"
	colCounters = "circ_counters"
)

// Singleton document ids.
const (
	docPool    = "pool"
	docPolicy  = "policy"
	docRoles   = "roles"
	docItemSeq = "item_seq"
)

// compile-time interface check
var _ circstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes and seeds the singleton pool document.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("circulation/mongo: migrate %s indexes: %w", col, err)
		}
	}

	_, err := s.mdb.Collection(colPool).UpdateOne(ctx,
		bson.M{"_id": docPool},
		bson.M{"$setOnInsert": bson.M{"amount_cents": int64(0), "currency": ""}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("circulation/mongo: seed pool: %w", err)
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
	// The counter document hands out the monotonic item id.
	var counter counterModel
	err := s.mdb.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": docItemSeq},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return fmt.Errorf("circulation/mongo: next item id: %w", err)
	}

	it.ID = catalog.ItemID(counter.Value)

	m := toItemModel(it)
	_, err = s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("circulation/mongo: create item: %w", err)
	}
	return nil
}

func (s *Store) GetItem(ctx context.Context, itemID catalog.ItemID) (*catalog.Item, error) {
	var m itemModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": int64(itemID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, circulation.ErrItemNotFound
		}
		return nil, fmt.Errorf("circulation/mongo: get item: %w", err)
	}
	return fromItemModel(&m)
}

func (s *Store) ListItems(ctx context.Context, opts catalog.ListOpts) ([]*catalog.Item, error) {
	var models []itemModel

	filter := bson.M{}
	if !opts.IncludePaused {
		filter["paused"] = false
	}
	if opts.Author != "" {
		filter["author"] = opts.Author
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("circulation/mongo: list items: %w", err)
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

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("circulation/mongo: update item: %w", err)
	}
	if res.MatchedCount() == 0 {
		return circulation.ErrItemNotFound
	}
	return nil
}

func (s *Store) SetItemPaused(ctx context.Context, itemID catalog.ItemID, paused bool) error {
	res, err := s.mdb.NewUpdate((*itemModel)(nil)).
		Filter(bson.M{"_id": int64(itemID)}).
		Set("paused", paused).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("circulation/mongo: set item paused: %w", err)
	}
	if res.MatchedCount() == 0 {
		return circulation.ErrItemNotFound
	}
	return nil
}

// ==================== Loan Store ====================

func (s *Store) CreateLoan(ctx context.Context, l *loan.Loan) error {
	m := toLoanModel(l)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("circulation/mongo: create loan: %w", err)
	}
	return nil
}

func (s *Store) GetLoan(ctx context.Context, key loan.Key) (*loan.Loan, error) {
	var m loanModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": loanDocID(key)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, circulation.ErrLoanNotFound
		}
		return nil, fmt.Errorf("circulation/mongo: get loan: %w", err)
	}
	return fromLoanModel(&m)
}

func (s *Store) GetLoanByID(ctx context.Context, loanID id.LoanID) (*loan.Loan, error) {
	var m loanModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"loan_id": loanID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, circulation.ErrLoanNotFound
		}
		return nil, fmt.Errorf("circulation/mongo: get loan by id: %w", err)
	}
	return fromLoanModel(&m)
}

func (s *Store) ListLoans(ctx context.Context, opts loan.ListOpts) ([]*loan.Loan, error) {
	var models []loanModel

	filter := bson.M{}
	if !opts.Borrower.IsNil() {
		filter["borrower"] = opts.Borrower.String()
	}
	if !opts.Item.IsZero() {
		filter["item_id"] = int64(opts.Item)
	}
	if !opts.DueBefore.IsZero() {
		filter["due_date"] = bson.M{"$lt": opts.DueBefore}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "opened_at", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("circulation/mongo: list loans: %w", err)
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

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("circulation/mongo: update loan: %w", err)
	}
	if res.MatchedCount() == 0 {
		return circulation.ErrLoanNotFound
	}
	return nil
}

func (s *Store) DeleteLoan(ctx context.Context, key loan.Key) error {
	res, err := s.mdb.NewDelete((*loanModel)(nil)).
		Filter(bson.M{"_id": loanDocID(key)}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("circulation/mongo: delete loan: %w", err)
	}
	if res.DeletedCount() == 0 {
		return circulation.ErrLoanNotFound
	}
	return nil
}

func (s *Store) CountLoansByItem(ctx context.Context, itemID catalog.ItemID) (int, error) {
	count, err := s.mdb.Collection(colLoans).CountDocuments(ctx, bson.M{"item_id": int64(itemID)})
	if err != nil {
		return 0, fmt.Errorf("circulation/mongo: count loans by item: %w", err)
	}
	return int(count), nil
}

func (s *Store) ListLoansDueBefore(ctx context.Context, cutoff time.Time) ([]*loan.Loan, error) {
	var models []loanModel

	err := s.mdb.NewFind(&models).
		Filter(bson.M{"due_date": bson.M{"$lt": cutoff}}).
		Sort(bson.D{{Key: "due_date", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("circulation/mongo: list loans due before: %w", err)
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
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("circulation/mongo: lock deposit: %w", err)
	}
	return nil
}

func (s *Store) GetDeposit(ctx context.Context, loanID id.LoanID) (*escrow.Entry, error) {
	var m escrowModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": loanID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, circulation.ErrEscrowNotFound
		}
		return nil, fmt.Errorf("circulation/mongo: get deposit: %w", err)
	}
	return fromEscrowModel(&m)
}

func (s *Store) ReleaseDeposit(ctx context.Context, loanID id.LoanID) (*escrow.Entry, error) {
	entry, err := s.GetDeposit(ctx, loanID)
	if err != nil {
		return nil, err
	}

	res, err := s.mdb.NewDelete((*escrowModel)(nil)).
		Filter(bson.M{"_id": loanID.String()}).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("circulation/mongo: release deposit: %w", err)
	}
	if res.DeletedCount() == 0 {
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
	var m poolModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": docPool}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return types.Money{}, nil
		}
		return types.Money{}, fmt.Errorf("circulation/mongo: pool balance: %w", err)
	}
	return types.New(m.AmountCents, m.Currency), nil
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

	_, err = s.mdb.Collection(colPool).UpdateOne(ctx,
		bson.M{"_id": docPool},
		bson.M{
			"$inc": bson.M{"amount_cents": delta.Amount},
			"$set": bson.M{"currency": delta.Currency},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("circulation/mongo: add to pool: %w", err)
	}
	return nil
}

func (s *Store) TotalLocked(ctx context.Context) (types.Money, error) {
	pipeline := bson.A{
		bson.M{
			"$group": bson.M{
				"_id":      nil,
				"total":    bson.M{"$sum": "$amount_cents"},
				"currency": bson.M{"$max": "$amount_currency"},
			},
		},
	}

	cursor, err := s.mdb.Collection(colEscrow).Aggregate(ctx, pipeline)
	if err != nil {
		return types.Money{}, fmt.Errorf("circulation/mongo: total locked: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Total    int64  `bson:"total"`
		Currency string `bson:"currency"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return types.Money{}, fmt.Errorf("circulation/mongo: total locked decode: %w", err)
	}

	if len(results) == 0 {
		return types.Money{}, nil
	}
	return types.New(results[0].Total, results[0].Currency), nil
}

// ==================== Inventory Store ====================

func (s *Store) UnitBalance(ctx context.Context, account id.AccountID, itemID catalog.ItemID) (uint64, error) {
	var m holdingModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": holdingDocID(account, itemID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("circulation/mongo: unit balance: %w", err)
	}
	return uint64(m.Units), nil
}

func (s *Store) MintUnits(ctx context.Context, account id.AccountID, itemID catalog.ItemID, units uint64) error {
	t := now()
	_, err := s.mdb.Collection(colHoldings).UpdateOne(ctx,
		bson.M{"_id": holdingDocID(account, itemID)},
		bson.M{
			"$inc": bson.M{"units": int64(units)},
			"$set": bson.M{"updated_at": t},
			"$setOnInsert": bson.M{
				"account":    account.String(),
				"item_id":    int64(itemID),
				"created_at": t,
			},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("circulation/mongo: mint units: %w", err)
	}
	return nil
}

func (s *Store) TransferUnits(ctx context.Context, from, to id.AccountID, itemID catalog.ItemID, units uint64) error {
	// The units guard in the filter keeps the balance from going negative.
	res, err := s.mdb.Collection(colHoldings).UpdateOne(ctx,
		bson.M{
			"_id":   holdingDocID(from, itemID),
			"units": bson.M{"$gte": int64(units)},
		},
		bson.M{
			"$inc": bson.M{"units": -int64(units)},
			"$set": bson.M{"updated_at": now()},
		},
	)
	if err != nil {
		return fmt.Errorf("circulation/mongo: transfer units: %w", err)
	}
	if res.MatchedCount == 0 {
		return circulation.ErrInsufficientUnits
	}

	return s.MintUnits(ctx, to, itemID, units)
}

func (s *Store) Holdings(ctx context.Context, account id.AccountID) ([]*inventory.Holding, error) {
	var models []holdingModel

	err := s.mdb.NewFind(&models).
		Filter(bson.M{"account": account.String(), "units": bson.M{"$gt": 0}}).
		Sort(bson.D{{Key: "item_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("circulation/mongo: holdings: %w", err)
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
	var m policyModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": docPolicy}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, circulation.ErrNotFound
		}
		return nil, fmt.Errorf("circulation/mongo: get policy: %w", err)
	}
	return fromPolicyModel(&m)
}

func (s *Store) PutPolicy(ctx context.Context, p *policy.Policy) error {
	m := toPolicyModel(p)
	m.UpdatedAt = now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = m.UpdatedAt
	}

	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		SetUpdate(bson.M{"$set": bson.M{
			"loan_duration_ns": m.LoanDurationNS,
			"deposit_cents":    m.DepositCents,
			"deposit_currency": m.DepositCurrency,
			"grace_ns":         m.GraceNS,
			"extension_ns":     m.ExtensionNS,
			"max_extensions":   m.MaxExtensions,
			"branch":           m.Branch,
			"created_at":       m.CreatedAt,
			"updated_at":       m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("circulation/mongo: put policy: %w", err)
	}
	return nil
}

// ==================== Role Store ====================

func (s *Store) GetRoles(ctx context.Context) (*access.Roles, error) {
	var m rolesModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": docRoles}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, circulation.ErrNotFound
		}
		return nil, fmt.Errorf("circulation/mongo: get roles: %w", err)
	}
	return fromRolesModel(&m)
}

func (s *Store) PutRoles(ctx context.Context, r *access.Roles) error {
	m := toRolesModel(r)
	t := now()

	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		SetUpdate(bson.M{"$set": bson.M{
			"steward":    m.Steward,
			"renounced":  m.Renounced,
			"curators":   m.Curators,
			"updated_at": t,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("circulation/mongo: put roles: %w", err)
	}
	return nil
}

// ==================== Card Store ====================

func (s *Store) CreateCard(ctx context.Context, c *member.Card) error {
	m := toCardModel(c)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("circulation/mongo: create card: %w", err)
	}
	return nil
}

func (s *Store) GetCard(ctx context.Context, cardID id.CardID) (*member.Card, error) {
	var m cardModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": cardID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, circulation.ErrCardNotFound
		}
		return nil, fmt.Errorf("circulation/mongo: get card: %w", err)
	}
	return fromCardModel(&m)
}

func (s *Store) GetActiveCardByAccount(ctx context.Context, account id.AccountID) (*member.Card, error) {
	var m cardModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"account": account.String(), "revoked_at": nil}).
		Sort(bson.D{{Key: "issued_at", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, circulation.ErrCardNotFound
		}
		return nil, fmt.Errorf("circulation/mongo: get active card: %w", err)
	}
	return fromCardModel(&m)
}

func (s *Store) ListCards(ctx context.Context, opts member.ListOpts) ([]*member.Card, error) {
	var models []cardModel

	filter := bson.M{}
	if !opts.Account.IsNil() {
		filter["account"] = opts.Account.String()
	}
	if !opts.IncludeRevoked {
		filter["revoked_at"] = nil
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "issued_at", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("circulation/mongo: list cards: %w", err)
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

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("circulation/mongo: update card: %w", err)
	}
	if res.MatchedCount() == 0 {
		return circulation.ErrCardNotFound
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colItems: {
			{Keys: bson.D{{Key: "author", Value: 1}}},
			{Keys: bson.D{{Key: "paused", Value: 1}}},
		},
		colLoans: {
			{
				Keys:    bson.D{{Key: "loan_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "borrower", Value: 1}}},
			{Keys: bson.D{{Key: "item_id", Value: 1}}},
			{Keys: bson.D{{Key: "due_date", Value: 1}}},
		},
		colEscrow: {
			{Keys: bson.D{{Key: "borrower", Value: 1}}},
		},
		colHoldings: {
			{Keys: bson.D{{Key: "account", Value: 1}, {Key: "item_id", Value: 1}}},
		},
		colCards: {
			{Keys: bson.D{{Key: "account", Value: 1}, {Key: "issued_at", Value: -1}}},
		},
	}
}
