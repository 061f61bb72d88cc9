package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/ashareinsight/ashareinsight/pkg/apperr"
	"github.com/ashareinsight/ashareinsight/pkg/types"
)

// GetCompany resolves identifier as, in order: exact stock code, exact full
// name, exact short name (case-insensitive, whitespace-stripped). At most
// one match is returned; ambiguous short-name collisions prefer an exact
// code match, per §4.1.
func (s *ConceptStore) GetCompany(ctx context.Context, identifier string) (*types.Company, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty identifier", apperr.ErrCompanyNotFound)
	}

	if c, err := s.queryCompany(ctx, `SELECT company_code, full_name, short_name, exchange, created_at, updated_at
		FROM companies WHERE company_code = $1`, trimmed); err == nil {
		return c, nil
	} else if !errors.Is(err, apperr.ErrCompanyNotFound) {
		return nil, err
	}

	if c, err := s.queryCompany(ctx, `SELECT company_code, full_name, short_name, exchange, created_at, updated_at
		FROM companies WHERE full_name = $1`, trimmed); err == nil {
		return c, nil
	} else if !errors.Is(err, apperr.ErrCompanyNotFound) {
		return nil, err
	}

	if c, err := s.queryCompany(ctx, `SELECT company_code, full_name, short_name, exchange, created_at, updated_at
		FROM companies WHERE lower(short_name) = lower($1) LIMIT 1`, trimmed); err == nil {
		return c, nil
	} else if !errors.Is(err, apperr.ErrCompanyNotFound) {
		return nil, err
	}

	return nil, fmt.Errorf("%w: %q", apperr.ErrCompanyNotFound, identifier)
}

func (s *ConceptStore) queryCompany(ctx context.Context, query string, arg string) (*types.Company, error) {
	row := s.db.QueryRowContext(ctx, query, arg)
	var c types.Company
	if err := row.Scan(&c.CompanyCode, &c.FullName, &c.ShortName, &c.Exchange, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrCompanyNotFound
		}
		return nil, fmt.Errorf("%w: %v", apperr.ErrRepository, err)
	}
	return &c, nil
}

// UpsertCompany is idempotent on CompanyCode: it creates the row if
// missing, or enriches ShortName/Exchange (when non-empty) on an existing
// row, per §4.1/§4.5.
func (s *ConceptStore) UpsertCompany(ctx context.Context, company types.Company) (*types.Company, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO companies (company_code, full_name, short_name, exchange, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (company_code) DO UPDATE SET
			full_name  = CASE WHEN EXCLUDED.full_name  <> '' THEN EXCLUDED.full_name  ELSE companies.full_name  END,
			short_name = CASE WHEN EXCLUDED.short_name <> '' THEN EXCLUDED.short_name ELSE companies.short_name END,
			exchange   = CASE WHEN EXCLUDED.exchange   <> '' THEN EXCLUDED.exchange   ELSE companies.exchange   END,
			updated_at = $5
		RETURNING company_code, full_name, short_name, exchange, created_at, updated_at`,
		company.CompanyCode, company.FullName, company.ShortName, company.Exchange, now)

	var c types.Company
	if err := row.Scan(&c.CompanyCode, &c.FullName, &c.ShortName, &c.Exchange, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, fmt.Errorf("%w: upsert company: %v", apperr.ErrRepository, err)
	}
	return &c, nil
}

// GetCompaniesByCodes batch-resolves companies for C9's aggregation step,
// which needs a display name for every company_code a recall hit carries
// without paying one round-trip per company. Codes with no matching row are
// simply absent from the returned map.
func (s *ConceptStore) GetCompaniesByCodes(ctx context.Context, codes []string) (map[string]*types.Company, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out := make(map[string]*types.Company, len(codes))
	if len(codes) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT company_code, full_name, short_name, exchange, created_at, updated_at
		FROM companies WHERE company_code = ANY($1)`, pq.Array(codes))
	if err != nil {
		return nil, fmt.Errorf("%w: get companies by codes: %v", apperr.ErrRepository, err)
	}
	defer rows.Close()

	for rows.Next() {
		var c types.Company
		if err := rows.Scan(&c.CompanyCode, &c.FullName, &c.ShortName, &c.Exchange, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrRepository, err)
		}
		out[c.CompanyCode] = &c
	}
	return out, rows.Err()
}
