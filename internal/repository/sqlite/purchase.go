package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/recshare/internal/apperror"
	"github.com/sakif/recshare/internal/model"
	"github.com/sakif/recshare/internal/repository"
)

var _ repository.PurchaseRepository = (*PurchaseDB)(nil)

// PurchaseDB reads and writes the purchases table.
type PurchaseDB struct {
	q querier
}

const purchaseColumns = `id, user_id, item_id, item_title, quantity, price, purchased_at,
	payment_details, variant, icon, label, consumable_kind, provider, used, used_at,
	version, created_at, updated_at`

type purchaseColumnsRow struct {
	variant, icon, label, kind, provider string
	used                                 bool
	usedAt                               sql.NullTime
}

func encodePurchaseDetails(d model.PurchaseDetails) purchaseColumnsRow {
	switch v := d.(type) {
	case model.IconPurchase:
		return purchaseColumnsRow{variant: string(model.PurchaseIcon), icon: v.Icon}
	case model.TitlePurchase:
		return purchaseColumnsRow{variant: string(model.PurchaseTitle), label: v.Label}
	case model.ConsumablePurchase:
		c := purchaseColumnsRow{
			variant: string(model.PurchaseConsumable),
			kind:    string(v.Kind),
			used:    v.Used,
		}
		if v.UsedAt != nil {
			c.usedAt = sql.NullTime{Time: *v.UsedAt, Valid: true}
		}
		return c
	case model.ProviderPurchase:
		return purchaseColumnsRow{variant: string(model.PurchaseProvider), provider: v.Provider}
	case model.UnknownPurchase:
		return purchaseColumnsRow{variant: v.Tag}
	default:
		return purchaseColumnsRow{}
	}
}

func decodePurchaseDetails(c purchaseColumnsRow) model.PurchaseDetails {
	switch model.PurchaseVariant(c.variant) {
	case model.PurchaseIcon:
		return model.IconPurchase{Icon: c.icon}
	case model.PurchaseTitle:
		return model.TitlePurchase{Label: c.label}
	case model.PurchaseConsumable:
		cp := model.ConsumablePurchase{Kind: model.ConsumableKind(c.kind), Used: c.used}
		if c.usedAt.Valid {
			t := c.usedAt.Time
			cp.UsedAt = &t
		}
		return cp
	case model.PurchaseProvider:
		return model.ProviderPurchase{Provider: c.provider}
	default:
		return model.UnknownPurchase{Tag: c.variant}
	}
}

func (p *PurchaseDB) FindPurchase(ctx context.Context, userID, itemID string) (*model.Purchase, error) {
	row := p.q.QueryRowContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE user_id = ? AND item_id = ?`,
		userID, itemID)
	return p.one(row, "purchase of item", itemID)
}

// GetPurchase is scoped to the owner: another user's record is reported as
// missing.
func (p *PurchaseDB) GetPurchase(ctx context.Context, userID, id string) (*model.Purchase, error) {
	row := p.q.QueryRowContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE id = ? AND user_id = ?`,
		id, userID)
	return p.one(row, "purchase", id)
}

func (p *PurchaseDB) FindConsumablePurchase(ctx context.Context, userID string, kind model.ConsumableKind) (*model.Purchase, error) {
	row := p.q.QueryRowContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchases
		 WHERE user_id = ? AND variant = ? AND consumable_kind = ?
		 ORDER BY quantity > 0 DESC, purchased_at ASC LIMIT 1`,
		userID, model.PurchaseConsumable, kind)
	return p.one(row, "consumable purchase", string(kind))
}

func (p *PurchaseDB) one(row *sql.Row, resource, id string) (*model.Purchase, error) {
	purchase, err := scanPurchase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound(resource, id)
		}
		return nil, fmt.Errorf("sqlite: getting %s %s: %w", resource, id, err)
	}
	return purchase, nil
}

// SavePurchase inserts or version-checks an update, see
// repository.PurchaseRepository.
func (p *PurchaseDB) SavePurchase(ctx context.Context, purchase *model.Purchase) error {
	if purchase.IsNew() {
		return p.insert(ctx, purchase)
	}
	return p.update(ctx, purchase)
}

func (p *PurchaseDB) insert(ctx context.Context, purchase *model.Purchase) error {
	now := time.Now().UTC()
	id := xid.New().String()
	if purchase.Payment.PurchasedAt.IsZero() {
		purchase.Payment.PurchasedAt = now
	}
	cols := encodePurchaseDetails(purchase.Details)

	_, err := p.q.ExecContext(ctx,
		`INSERT INTO purchases (`+purchaseColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		id,
		purchase.UserID,
		purchase.ItemID,
		purchase.ItemTitle,
		purchase.Quantity,
		purchase.Payment.Price,
		purchase.Payment.PurchasedAt,
		purchase.Payment.Details,
		cols.variant,
		cols.icon,
		cols.label,
		cols.kind,
		cols.provider,
		cols.used,
		cols.usedAt,
		now,
		now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			// Another scope created the (user, item) record first.
			return apperror.ConcurrentModification("purchase of item", purchase.ItemID)
		}
		return fmt.Errorf("sqlite: inserting purchase of item %s: %w", purchase.ItemID, err)
	}

	purchase.ID = id
	purchase.Version = 1
	purchase.CreatedAt = now
	purchase.UpdatedAt = now
	return nil
}

func (p *PurchaseDB) update(ctx context.Context, purchase *model.Purchase) error {
	now := time.Now().UTC()
	cols := encodePurchaseDetails(purchase.Details)

	res, err := p.q.ExecContext(ctx,
		`UPDATE purchases
		 SET quantity = ?, icon = ?, label = ?, provider = ?, used = ?, used_at = ?,
		     version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		purchase.Quantity,
		cols.icon,
		cols.label,
		cols.provider,
		cols.used,
		cols.usedAt,
		now,
		purchase.ID,
		purchase.Version,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating purchase %s: %w", purchase.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.ConcurrentModification("purchase", purchase.ID)
	}

	purchase.Version++
	purchase.UpdatedAt = now
	return nil
}

func (p *PurchaseDB) SearchPurchases(ctx context.Context, userID string, filter repository.PurchaseFilter, opts repository.ListOptions) ([]model.Purchase, int, error) {
	where := []string{"user_id = ?"}
	args := []any{userID}

	if q := strings.TrimSpace(filter.Query); q != "" {
		where = append(where, `lower(item_title) LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(q))
	}
	if filter.Variant != "" {
		where = append(where, "variant = ?")
		args = append(args, filter.Variant)
	}
	switch filter.Status {
	case repository.StatusAvailable:
		where = append(where, "quantity > 0")
	case repository.StatusDepleted:
		where = append(where, "quantity = 0")
	}
	clause := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := p.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM purchases`+clause, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting purchases of user %s: %w", userID, err)
	}

	rows, err := p.q.QueryContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchases`+clause+
			` ORDER BY purchased_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: searching purchases of user %s: %w", userID, err)
	}
	defer rows.Close()

	purchases := []model.Purchase{}
	for rows.Next() {
		purchase, err := scanPurchase(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning purchase: %w", err)
		}
		purchases = append(purchases, *purchase)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating purchases: %w", err)
	}
	return purchases, total, nil
}

func scanPurchase(s rowScanner) (*model.Purchase, error) {
	var (
		purchase model.Purchase
		cols     purchaseColumnsRow
	)
	err := s.Scan(
		&purchase.ID,
		&purchase.UserID,
		&purchase.ItemID,
		&purchase.ItemTitle,
		&purchase.Quantity,
		&purchase.Payment.Price,
		&purchase.Payment.PurchasedAt,
		&purchase.Payment.Details,
		&cols.variant,
		&cols.icon,
		&cols.label,
		&cols.kind,
		&cols.provider,
		&cols.used,
		&cols.usedAt,
		&purchase.Version,
		&purchase.CreatedAt,
		&purchase.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	purchase.Details = decodePurchaseDetails(cols)
	return &purchase, nil
}
