// Package memory provides an in-memory repository.Store. It is safe for
// concurrent use and is intended for tests and local development.
//
// Scopes are simulated with a snapshot of the whole state taken at Begin and
// restored on Abort. A scope holds the store lock until it ends, so scopes
// are serialised exactly like the single-connection SQLite pool. As there,
// calling the store's own repositories while a scope is open from the same
// goroutine blocks.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/recshare/internal/apperror"
	"github.com/sakif/recshare/internal/model"
	"github.com/sakif/recshare/internal/repository"
)

// Op names a store operation that can be made to fail with InjectFault.
type Op string

const (
	OpAdjustBalance Op = "AdjustBalance"
	OpSavePurchase  Op = "SavePurchase"
	OpCreateToken   Op = "CreateToken"
	OpUpdateProfile Op = "UpdateProfile"
	OpNotify        Op = "CreateNotification"
	OpCommit        Op = "Commit"
)

var errScopeClosed = errors.New("memory: scope already committed or aborted")

type state struct {
	users     map[string]model.User
	items     map[string]model.MarketItem
	purchases map[string]model.Purchase
	tokens    map[string]model.AccountToken
	notes     []model.Notification
}

func (s *state) clone() *state {
	c := &state{
		users:     make(map[string]model.User, len(s.users)),
		items:     make(map[string]model.MarketItem, len(s.items)),
		purchases: make(map[string]model.Purchase, len(s.purchases)),
		tokens:    make(map[string]model.AccountToken, len(s.tokens)),
		notes:     append([]model.Notification{}, s.notes...),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.purchases {
		c.purchases[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	return c
}

// Store is an in-memory repository.Store.
type Store struct {
	mu     sync.Mutex
	data   *state
	faults map[Op]error
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		data: &state{
			users:     make(map[string]model.User),
			items:     make(map[string]model.MarketItem),
			purchases: make(map[string]model.Purchase),
			tokens:    make(map[string]model.AccountToken),
		},
		faults: make(map[Op]error),
	}
}

// InjectFault makes every later call of op fail with err. A nil err clears
// the fault.
func (s *Store) InjectFault(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

func (s *Store) Users() repository.UserRepository {
	return &userRepo{repos{store: s}}
}

func (s *Store) Market() repository.MarketRepository {
	return &marketRepo{repos{store: s}}
}

func (s *Store) Purchases() repository.PurchaseRepository {
	return &purchaseRepo{repos{store: s}}
}

func (s *Store) Tokens() repository.TokenRepository {
	return &tokenRepo{repos{store: s}}
}

func (s *Store) Notifications() repository.NotificationRepository {
	return &notificationRepo{repos{store: s}}
}

// Begin locks the store for the lifetime of the scope.
func (s *Store) Begin(ctx context.Context) (repository.Scope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return &Scope{store: s, snapshot: s.data.clone()}, nil
}

// Scope is a repository.Scope over a Store.
type Scope struct {
	store    *Store
	snapshot *state
	done     bool
}

var _ repository.Scope = (*Scope)(nil)

func (sc *Scope) Users() repository.UserRepository {
	return &userRepo{repos{store: sc.store, inScope: true}}
}

func (sc *Scope) Market() repository.MarketRepository {
	return &marketRepo{repos{store: sc.store, inScope: true}}
}

func (sc *Scope) Purchases() repository.PurchaseRepository {
	return &purchaseRepo{repos{store: sc.store, inScope: true}}
}

func (sc *Scope) Tokens() repository.TokenRepository {
	return &tokenRepo{repos{store: sc.store, inScope: true}}
}

func (sc *Scope) Notifications() repository.NotificationRepository {
	return &notificationRepo{repos{store: sc.store, inScope: true}}
}

// Commit keeps the scope's writes. A failed commit restores the snapshot.
func (sc *Scope) Commit() error {
	if sc.done {
		return errScopeClosed
	}
	sc.done = true
	defer sc.store.mu.Unlock()

	if err := sc.store.faults[OpCommit]; err != nil {
		sc.store.data = sc.snapshot
		return err
	}
	return nil
}

func (sc *Scope) Abort() error {
	if sc.done {
		return nil
	}
	sc.done = true
	sc.store.data = sc.snapshot
	sc.store.mu.Unlock()
	return nil
}

func (sc *Scope) End() {
	_ = sc.Abort()
}

// repos is embedded in every repository. Repositories of a scope run under
// the lock the scope already holds; the store's own take it per call.
type repos struct {
	store   *Store
	inScope bool
}

func (r repos) lock() func() {
	if r.inScope {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

func (r repos) data() *state {
	return r.store.data
}

func (r repos) fault(op Op) error {
	return r.store.faults[op]
}

// ---------------------------------------------------------------------------
// users

type userRepo struct{ repos }

func (r *userRepo) Create(_ context.Context, user *model.User) error {
	defer r.lock()()

	if user.ID == "" {
		user.ID = xid.New().String()
	}
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	if user.Balance < 0 {
		return apperror.InvalidAmount("balance must not be negative")
	}
	for _, u := range r.data().users {
		if u.Username == user.Username || u.ID == user.ID {
			return apperror.Conflict("user", user.Username)
		}
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.data().users[user.ID] = *user
	return nil
}

func (r *userRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	defer r.lock()()

	u, ok := r.data().users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return &u, nil
}

func (r *userRepo) UpdateProfile(_ context.Context, user *model.User) error {
	defer r.lock()()

	if err := r.fault(OpUpdateProfile); err != nil {
		return err
	}
	u, ok := r.data().users[user.ID]
	if !ok {
		return apperror.NotFound("user", user.ID)
	}
	user.UpdatedAt = time.Now().UTC()
	u.Avatar = user.Avatar
	u.Title = user.Title
	u.UpdatedAt = user.UpdatedAt
	r.data().users[user.ID] = u
	return nil
}

func (r *userRepo) AdjustBalance(_ context.Context, id string, delta int64) (int64, error) {
	defer r.lock()()

	if err := r.fault(OpAdjustBalance); err != nil {
		return 0, err
	}
	u, ok := r.data().users[id]
	if !ok {
		return 0, apperror.NotFound("user", id)
	}
	if u.Balance+delta < 0 {
		return 0, &apperror.InsufficientCreditError{UserID: id, Available: u.Balance, Requested: -delta}
	}
	u.Balance += delta
	u.UpdatedAt = time.Now().UTC()
	r.data().users[id] = u
	return u.Balance, nil
}

// ---------------------------------------------------------------------------
// market

type marketRepo struct{ repos }

func (r *marketRepo) CreateItem(_ context.Context, item *model.MarketItem) error {
	defer r.lock()()

	if err := r.checkUnique(item, ""); err != nil {
		return err
	}
	item.ID = xid.New().String()
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	item.Tags = cleanTags(item.Tags)
	r.data().items[item.ID] = *item
	return nil
}

func (r *marketRepo) UpdateItem(_ context.Context, item *model.MarketItem) error {
	defer r.lock()()

	old, ok := r.data().items[item.ID]
	if !ok {
		return apperror.NotFound("market item", item.ID)
	}
	if err := r.checkUnique(item, item.ID); err != nil {
		return err
	}
	item.CreatedAt = old.CreatedAt
	item.CreatedBy = old.CreatedBy
	item.UpdatedAt = time.Now().UTC()
	item.Tags = cleanTags(item.Tags)
	r.data().items[item.ID] = *item
	return nil
}

func (r *marketRepo) checkUnique(item *model.MarketItem, excludeID string) error {
	kind, isConsumable := item.ConsumableKind()
	for id, other := range r.data().items {
		if id == excludeID {
			continue
		}
		if strings.EqualFold(other.Title, item.Title) {
			return apperror.DuplicateName(item.Title)
		}
		if k, ok := other.ConsumableKind(); isConsumable && ok && k == kind {
			return apperror.DuplicateConsumableKind(string(kind))
		}
	}
	return nil
}

func (r *marketRepo) GetItemByID(_ context.Context, id string) (*model.MarketItem, error) {
	defer r.lock()()

	item, ok := r.data().items[id]
	if !ok {
		return nil, apperror.NotFound("market item", id)
	}
	return &item, nil
}

func (r *marketRepo) GetItemByConsumableKind(_ context.Context, kind model.ConsumableKind) (*model.MarketItem, error) {
	defer r.lock()()

	for _, item := range r.data().items {
		if k, ok := item.ConsumableKind(); ok && k == kind {
			return &item, nil
		}
	}
	return nil, apperror.NotFound("consumable market item", string(kind))
}

func (r *marketRepo) TitleExists(_ context.Context, title, excludeID string) (bool, error) {
	defer r.lock()()

	title = strings.TrimSpace(title)
	for id, item := range r.data().items {
		if id != excludeID && strings.EqualFold(item.Title, title) {
			return true, nil
		}
	}
	return false, nil
}

func (r *marketRepo) ConsumableKindExists(_ context.Context, kind model.ConsumableKind, excludeID string) (bool, error) {
	defer r.lock()()

	for id, item := range r.data().items {
		if k, ok := item.ConsumableKind(); ok && k == kind && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (r *marketRepo) SearchItems(_ context.Context, filter repository.MarketFilter, opts repository.ListOptions) ([]model.MarketItem, int, error) {
	defer r.lock()()

	q := strings.ToLower(strings.TrimSpace(filter.Query))
	var matched []model.MarketItem
	for _, item := range r.data().items {
		if filter.Variant != "" && item.Variant() != filter.Variant {
			continue
		}
		if filter.Enabled != nil && item.Enabled != *filter.Enabled {
			continue
		}
		if q != "" && !itemMatches(item, q) {
			continue
		}
		matched = append(matched, item)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	return paginate(matched, opts), len(matched), nil
}

func itemMatches(item model.MarketItem, q string) bool {
	if strings.Contains(strings.ToLower(item.Title), q) {
		return true
	}
	if t, ok := item.Details.(model.TitleItem); ok && strings.Contains(strings.ToLower(t.Label), q) {
		return true
	}
	for _, tag := range item.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// purchases

type purchaseRepo struct{ repos }

func (r *purchaseRepo) FindPurchase(_ context.Context, userID, itemID string) (*model.Purchase, error) {
	defer r.lock()()

	for _, p := range r.data().purchases {
		if p.UserID == userID && p.ItemID == itemID {
			return &p, nil
		}
	}
	return nil, apperror.NotFound("purchase of item", itemID)
}

func (r *purchaseRepo) GetPurchase(_ context.Context, userID, id string) (*model.Purchase, error) {
	defer r.lock()()

	p, ok := r.data().purchases[id]
	if !ok || p.UserID != userID {
		return nil, apperror.NotFound("purchase", id)
	}
	return &p, nil
}

func (r *purchaseRepo) FindConsumablePurchase(_ context.Context, userID string, kind model.ConsumableKind) (*model.Purchase, error) {
	defer r.lock()()

	var found *model.Purchase
	for _, p := range r.data().purchases {
		c, ok := p.Details.(model.ConsumablePurchase)
		if !ok || p.UserID != userID || c.Kind != kind {
			continue
		}
		if found == nil || consumableBefore(&p, found) {
			found = &p
		}
	}
	if found == nil {
		return nil, apperror.NotFound("consumable purchase", string(kind))
	}
	return found, nil
}

// consumableBefore reports whether a is picked over b: records with units
// left come first, then the oldest.
func consumableBefore(a, b *model.Purchase) bool {
	if (a.Quantity > 0) != (b.Quantity > 0) {
		return a.Quantity > 0
	}
	return a.Payment.PurchasedAt.Before(b.Payment.PurchasedAt)
}

func (r *purchaseRepo) SavePurchase(_ context.Context, p *model.Purchase) error {
	defer r.lock()()

	if err := r.fault(OpSavePurchase); err != nil {
		return err
	}
	if p.Quantity < 0 {
		return apperror.ValidationFailed("quantity", "quantity must not be negative")
	}
	now := time.Now().UTC()

	if p.IsNew() {
		for _, other := range r.data().purchases {
			if other.UserID == p.UserID && other.ItemID == p.ItemID {
				return apperror.ConcurrentModification("purchase of item", p.ItemID)
			}
		}
		if p.Payment.PurchasedAt.IsZero() {
			p.Payment.PurchasedAt = now
		}
		p.ID = xid.New().String()
		p.Version = 1
		p.CreatedAt = now
		p.UpdatedAt = now
		r.data().purchases[p.ID] = *p
		return nil
	}

	stored, ok := r.data().purchases[p.ID]
	if !ok || stored.Version != p.Version {
		return apperror.ConcurrentModification("purchase", p.ID)
	}
	p.Payment = stored.Payment
	p.CreatedAt = stored.CreatedAt
	p.Version++
	p.UpdatedAt = now
	r.data().purchases[p.ID] = *p
	return nil
}

func (r *purchaseRepo) SearchPurchases(_ context.Context, userID string, filter repository.PurchaseFilter, opts repository.ListOptions) ([]model.Purchase, int, error) {
	defer r.lock()()

	q := strings.ToLower(strings.TrimSpace(filter.Query))
	var matched []model.Purchase
	for _, p := range r.data().purchases {
		if p.UserID != userID {
			continue
		}
		if filter.Variant != "" && p.Variant() != filter.Variant {
			continue
		}
		if filter.Status == repository.StatusAvailable && p.Quantity == 0 {
			continue
		}
		if filter.Status == repository.StatusDepleted && p.Quantity != 0 {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.ItemTitle), q) {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i].Payment.PurchasedAt, matched[j].Payment.PurchasedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return matched[i].ID > matched[j].ID
	})
	return paginate(matched, opts), len(matched), nil
}

// ---------------------------------------------------------------------------
// tokens

type tokenRepo struct{ repos }

func (r *tokenRepo) CreateToken(_ context.Context, token *model.AccountToken) error {
	defer r.lock()()

	if err := r.fault(OpCreateToken); err != nil {
		return err
	}
	if _, exists := r.data().tokens[token.ID]; exists {
		return apperror.Conflict("account token", token.ID)
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	r.data().tokens[token.ID] = *token
	return nil
}

func (r *tokenRepo) GetToken(_ context.Context, id string) (*model.AccountToken, error) {
	defer r.lock()()

	t, ok := r.data().tokens[id]
	if !ok {
		return nil, apperror.NotFound("account token", id)
	}
	return &t, nil
}

func (r *tokenRepo) MarkTokenUsed(_ context.Context, id, usedBy string, at time.Time) error {
	defer r.lock()()

	t, ok := r.data().tokens[id]
	if !ok {
		return apperror.NotFound("account token", id)
	}
	if t.Used() {
		return apperror.Conflict("account token", id)
	}
	t.UsedBy = usedBy
	t.UsedAt = &at
	r.data().tokens[id] = t
	return nil
}

func (r *tokenRepo) ListTokensByCreator(_ context.Context, userID string) ([]model.AccountToken, error) {
	defer r.lock()()

	tokens := []model.AccountToken{}
	for _, t := range r.data().tokens {
		if t.CreatedBy == userID {
			tokens = append(tokens, t)
		}
	}
	sort.Slice(tokens, func(i, j int) bool {
		if !tokens[i].CreatedAt.Equal(tokens[j].CreatedAt) {
			return tokens[i].CreatedAt.After(tokens[j].CreatedAt)
		}
		return tokens[i].ID > tokens[j].ID
	})
	return tokens, nil
}

// ---------------------------------------------------------------------------
// notifications

type notificationRepo struct{ repos }

func (r *notificationRepo) CreateNotification(_ context.Context, n *model.Notification) error {
	defer r.lock()()

	if err := r.fault(OpNotify); err != nil {
		return err
	}
	if n.ID == "" {
		n.ID = xid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	r.data().notes = append(r.data().notes, *n)
	return nil
}

func (r *notificationRepo) ListNotifications(_ context.Context, userID string, opts repository.ListOptions) ([]model.Notification, error) {
	defer r.lock()()

	notes := []model.Notification{}
	for i := len(r.data().notes) - 1; i >= 0; i-- {
		if n := r.data().notes[i]; n.ToUser == userID {
			notes = append(notes, n)
		}
	}
	if opts.Limit <= 0 {
		return notes, nil
	}
	return paginate(notes, opts), nil
}

// ---------------------------------------------------------------------------
// helpers

func paginate[T any](items []T, opts repository.ListOptions) []T {
	if opts.Offset >= len(items) {
		return []T{}
	}
	items = items[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return append([]T{}, items...)
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
