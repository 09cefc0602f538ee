package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"

	"github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/repositories"
)

// TaxRateRepository reads enabled tax rates from the tax_rates table.
type TaxRateRepository struct {
	db      Querier
	timeout time.Duration
}

var _ repositories.TaxRateRepository = (*TaxRateRepository)(nil)

// NewTaxRateRepository constructs a Postgres-backed tax rate repository.
func NewTaxRateRepository(db Querier) (*TaxRateRepository, error) {
	if db == nil {
		return nil, errors.New("postgres tax rate repository requires a database")
	}
	return &TaxRateRepository{db: db, timeout: defaultQueryTimeout}, nil
}

type taxRateRow struct {
	ID              string  `db:"id"`
	Name            string  `db:"name"`
	Value           float64 `db:"value"`
	Enabled         bool    `db:"enabled"`
	CategoryID      string  `db:"category_id"`
	ZoneID          string  `db:"zone_id"`
	CustomerGroupID *string `db:"customer_group_id"`
}

const listEnabledTaxRates = `
SELECT id, name, value::float8 AS value, enabled, category_id, zone_id, customer_group_id
FROM tax_rates
WHERE enabled
ORDER BY id`

// ListEnabled returns enabled tax rates ordered by ID.
func (r *TaxRateRepository) ListEnabled(ctx context.Context) ([]domain.TaxRate, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.Query(ctx, listEnabledTaxRates)
	if err != nil {
		return nil, wrapError("tax_rates.list", err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[taxRateRow])
	if err != nil {
		return nil, wrapError("tax_rates.list", err)
	}
	return lo.Map(records, func(row taxRateRow, _ int) domain.TaxRate {
		return domain.TaxRate{
			ID:              row.ID,
			Name:            row.Name,
			Value:           row.Value,
			Enabled:         row.Enabled,
			CategoryID:      row.CategoryID,
			ZoneID:          row.ZoneID,
			CustomerGroupID: lo.FromPtr(row.CustomerGroupID),
		}
	}), nil
}

// ZoneRepository reads tax zones and their member countries.
type ZoneRepository struct {
	db      Querier
	timeout time.Duration
}

var _ repositories.ZoneRepository = (*ZoneRepository)(nil)

// NewZoneRepository constructs a Postgres-backed zone repository.
func NewZoneRepository(db Querier) (*ZoneRepository, error) {
	if db == nil {
		return nil, errors.New("postgres zone repository requires a database")
	}
	return &ZoneRepository{db: db, timeout: defaultQueryTimeout}, nil
}

type zoneRow struct {
	ID      string   `db:"id"`
	Name    string   `db:"name"`
	Members []string `db:"members"`
}

const listZones = `
SELECT z.id, z.name,
       COALESCE(array_agg(m.country_code ORDER BY m.country_code) FILTER (WHERE m.country_code IS NOT NULL), '{}') AS members
FROM tax_zones z
LEFT JOIN tax_zone_members m ON m.zone_id = z.id
GROUP BY z.id, z.name
ORDER BY z.id`

// List returns all zones with upper-cased member country codes.
func (r *ZoneRepository) List(ctx context.Context) ([]domain.Zone, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.Query(ctx, listZones)
	if err != nil {
		return nil, wrapError("tax_zones.list", err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[zoneRow])
	if err != nil {
		return nil, wrapError("tax_zones.list", err)
	}
	return lo.Map(records, func(row zoneRow, _ int) domain.Zone {
		return domain.Zone{
			ID:      row.ID,
			Name:    row.Name,
			Members: lo.Map(row.Members, func(m string, _ int) string { return strings.ToUpper(strings.TrimSpace(m)) }),
		}
	}), nil
}
