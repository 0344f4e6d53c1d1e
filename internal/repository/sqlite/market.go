package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/recshare/internal/apperror"
	"github.com/sakif/recshare/internal/model"
	"github.com/sakif/recshare/internal/repository"
)

var _ repository.MarketRepository = (*MarketDB)(nil)

// MarketDB reads and writes the market_items table.
//
// Variant payloads are flattened into one nullable-free column per field
// (icon, label, consumable_kind, provider); only the column matching the
// variant is populated.
type MarketDB struct {
	q querier
}

const marketColumns = `id, title, description, price, enabled, variant, icon, label,
	consumable_kind, provider, tags_json, created_by, modified_by, created_at, updated_at`

type itemColumns struct {
	variant, icon, label, kind, provider string
}

func encodeItemDetails(d model.ItemDetails) itemColumns {
	switch v := d.(type) {
	case model.IconItem:
		return itemColumns{variant: string(model.VariantIcon), icon: v.Icon}
	case model.TitleItem:
		return itemColumns{variant: string(model.VariantTitle), label: v.Label}
	case model.ConsumableItem:
		return itemColumns{variant: string(model.VariantConsumable), kind: string(v.Kind)}
	case model.ProviderItem:
		return itemColumns{variant: string(model.VariantProvider), provider: v.Provider}
	case model.UnknownItem:
		return itemColumns{variant: v.Tag}
	default:
		return itemColumns{}
	}
}

func decodeItemDetails(c itemColumns) model.ItemDetails {
	switch model.ItemVariant(c.variant) {
	case model.VariantIcon:
		return model.IconItem{Icon: c.icon}
	case model.VariantTitle:
		return model.TitleItem{Label: c.label}
	case model.VariantConsumable:
		return model.ConsumableItem{Kind: model.ConsumableKind(c.kind)}
	case model.VariantProvider:
		return model.ProviderItem{Provider: c.provider}
	default:
		return model.UnknownItem{Tag: c.variant}
	}
}

// CreateItem inserts a new market item, assigning its ID and timestamps.
// The unique indexes back up the service-level duplicate checks when two
// admins race.
func (m *MarketDB) CreateItem(ctx context.Context, item *model.MarketItem) error {
	item.ID = xid.New().String()
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	tags, err := json.Marshal(normalizeTags(item.Tags))
	if err != nil {
		return fmt.Errorf("sqlite: encoding tags: %w", err)
	}
	cols := encodeItemDetails(item.Details)

	_, err = m.q.ExecContext(ctx,
		`INSERT INTO market_items (`+marketColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.Title,
		item.Description,
		item.Price,
		item.Enabled,
		cols.variant,
		cols.icon,
		cols.label,
		cols.kind,
		cols.provider,
		string(tags),
		item.CreatedBy,
		item.ModifiedBy,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		return translateMarketError(err, item)
	}
	return nil
}

// UpdateItem rewrites every mutable column. CreatedBy and CreatedAt are
// left untouched.
func (m *MarketDB) UpdateItem(ctx context.Context, item *model.MarketItem) error {
	item.UpdatedAt = time.Now().UTC()

	tags, err := json.Marshal(normalizeTags(item.Tags))
	if err != nil {
		return fmt.Errorf("sqlite: encoding tags: %w", err)
	}
	cols := encodeItemDetails(item.Details)

	res, err := m.q.ExecContext(ctx,
		`UPDATE market_items
		 SET title = ?, description = ?, price = ?, enabled = ?, variant = ?, icon = ?,
		     label = ?, consumable_kind = ?, provider = ?, tags_json = ?,
		     modified_by = ?, updated_at = ?
		 WHERE id = ?`,
		item.Title,
		item.Description,
		item.Price,
		item.Enabled,
		cols.variant,
		cols.icon,
		cols.label,
		cols.kind,
		cols.provider,
		string(tags),
		item.ModifiedBy,
		item.UpdatedAt,
		item.ID,
	)
	if err != nil {
		return translateMarketError(err, item)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("market item", item.ID)
	}
	return nil
}

func (m *MarketDB) GetItemByID(ctx context.Context, id string) (*model.MarketItem, error) {
	row := m.q.QueryRowContext(ctx,
		`SELECT `+marketColumns+` FROM market_items WHERE id = ?`, id)
	item, err := scanMarketItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("market item", id)
		}
		return nil, fmt.Errorf("sqlite: getting market item %s: %w", id, err)
	}
	return item, nil
}

func (m *MarketDB) GetItemByConsumableKind(ctx context.Context, kind model.ConsumableKind) (*model.MarketItem, error) {
	row := m.q.QueryRowContext(ctx,
		`SELECT `+marketColumns+` FROM market_items
		 WHERE variant = ? AND consumable_kind = ?`,
		model.VariantConsumable, kind)
	item, err := scanMarketItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("consumable market item", string(kind))
		}
		return nil, fmt.Errorf("sqlite: getting consumable item %s: %w", kind, err)
	}
	return item, nil
}

func (m *MarketDB) TitleExists(ctx context.Context, title, excludeID string) (bool, error) {
	var count int
	err := m.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM market_items WHERE title = ? COLLATE NOCASE AND id != ?`,
		strings.TrimSpace(title), excludeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking market title %q: %w", title, err)
	}
	return count > 0, nil
}

func (m *MarketDB) ConsumableKindExists(ctx context.Context, kind model.ConsumableKind, excludeID string) (bool, error) {
	var count int
	err := m.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM market_items
		 WHERE variant = ? AND consumable_kind = ? AND id != ?`,
		model.VariantConsumable, kind, excludeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking consumable kind %q: %w", kind, err)
	}
	return count > 0, nil
}

// SearchItems returns one page of matching items, newest first, and the
// total number of matches.
func (m *MarketDB) SearchItems(ctx context.Context, filter repository.MarketFilter, opts repository.ListOptions) ([]model.MarketItem, int, error) {
	var (
		where []string
		args  []any
	)
	if q := strings.TrimSpace(filter.Query); q != "" {
		p := likePattern(q)
		where = append(where,
			`(lower(title) LIKE ? ESCAPE '\' OR lower(label) LIKE ? ESCAPE '\' OR lower(tags_json) LIKE ? ESCAPE '\')`)
		args = append(args, p, p, p)
	}
	if filter.Variant != "" {
		where = append(where, "variant = ?")
		args = append(args, filter.Variant)
	}
	if filter.Enabled != nil {
		where = append(where, "enabled = ?")
		args = append(args, *filter.Enabled)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := m.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM market_items`+clause, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting market items: %w", err)
	}

	rows, err := m.q.QueryContext(ctx,
		`SELECT `+marketColumns+` FROM market_items`+clause+
			` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: searching market items: %w", err)
	}
	defer rows.Close()

	items := []model.MarketItem{}
	for rows.Next() {
		item, err := scanMarketItem(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: scanning market item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: iterating market items: %w", err)
	}
	return items, total, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMarketItem(s rowScanner) (*model.MarketItem, error) {
	var (
		item model.MarketItem
		cols itemColumns
		tags string
	)
	err := s.Scan(
		&item.ID,
		&item.Title,
		&item.Description,
		&item.Price,
		&item.Enabled,
		&cols.variant,
		&cols.icon,
		&cols.label,
		&cols.kind,
		&cols.provider,
		&tags,
		&item.CreatedBy,
		&item.ModifiedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &item.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags of item %s: %w", item.ID, err)
	}
	item.Details = decodeItemDetails(cols)
	return &item, nil
}

func translateMarketError(err error, item *model.MarketItem) error {
	if isUniqueConstraintError(err) {
		if strings.Contains(err.Error(), "consumable_kind") {
			kind, _ := item.ConsumableKind()
			return apperror.DuplicateConsumableKind(string(kind))
		}
		return apperror.DuplicateName(item.Title)
	}
	return fmt.Errorf("sqlite: writing market item %q: %w", item.Title, err)
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
