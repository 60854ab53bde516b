// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

const socialLinkColumns = `id, account_id, provider, provider_id, provider_email, provider_data, created_at`

// SocialLinkRepository implements auth.SocialLinkRepository using PostgreSQL.
type SocialLinkRepository struct {
	pool poolIface
}

// NewSocialLinkRepository creates a new SocialLinkRepository.
func NewSocialLinkRepository(pool poolIface) *SocialLinkRepository {
	return &SocialLinkRepository{pool: pool}
}

// Create stores a link.
func (r *SocialLinkRepository) Create(ctx context.Context, link *auth.SocialLink) error {
	var data []byte
	if len(link.ProviderData) > 0 {
		data = link.ProviderData
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO social_links (`+socialLinkColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		link.ID.String(),
		link.AccountID.String(),
		string(link.Provider),
		link.ProviderID,
		link.ProviderEmail,
		data,
		link.CreatedAt,
	)
	if isUniqueViolation(err) {
		return oops.Code("SOCIAL_LINK_DUPLICATE").
			With("provider", string(link.Provider)).
			With("provider_id", link.ProviderID).
			Wrap(auth.ErrDuplicate)
	}
	if err != nil {
		return oops.Code("SOCIAL_LINK_CREATE_FAILED").
			With("operation", "insert social_link").
			With("account_id", link.AccountID.String()).
			Wrap(err)
	}
	return nil
}

// GetByProviderID retrieves the link for an external identity.
func (r *SocialLinkRepository) GetByProviderID(ctx context.Context, provider auth.Provider, providerID string) (*auth.SocialLink, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+socialLinkColumns+`
		FROM social_links
		WHERE provider = $1 AND provider_id = $2
	`, string(provider), providerID)

	link, err := scanSocialLink(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SOCIAL_LINK_NOT_FOUND").
			With("provider", string(provider)).
			With("provider_id", providerID).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SOCIAL_LINK_GET_FAILED").
			With("operation", "get social link by provider id").
			With("provider", string(provider)).
			Wrap(err)
	}
	return link, nil
}

// ListByAccount returns all links of an account, oldest first.
func (r *SocialLinkRepository) ListByAccount(ctx context.Context, accountID ulid.ULID) ([]*auth.SocialLink, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+socialLinkColumns+`
		FROM social_links
		WHERE account_id = $1
		ORDER BY created_at, id
	`, accountID.String())
	if err != nil {
		return nil, oops.Code("SOCIAL_LINK_LIST_FAILED").
			With("operation", "list social links by account").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var links []*auth.SocialLink
	for rows.Next() {
		link, err := scanSocialLink(rows)
		if err != nil {
			return nil, oops.Code("SOCIAL_LINK_SCAN_FAILED").
				With("operation", "scan social link row").
				Wrap(err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("SOCIAL_LINK_ROWS_ERROR").
			With("operation", "iterate social link rows").
			Wrap(err)
	}
	return links, nil
}

// scanSocialLink scans a single row into a SocialLink.
// Callers are responsible for handling pgx.ErrNoRows.
func scanSocialLink(row pgx.Row) (*auth.SocialLink, error) {
	var (
		idStr, accountIDStr, provider string
		data                          []byte
		link                          auth.SocialLink
	)
	err := row.Scan(
		&idStr,
		&accountIDStr,
		&provider,
		&link.ProviderID,
		&link.ProviderEmail,
		&data,
		&link.CreatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context-specific info
	}

	if link.ID, err = parseID("id", idStr); err != nil {
		return nil, err
	}
	if link.AccountID, err = parseID("account_id", accountIDStr); err != nil {
		return nil, err
	}
	link.Provider = auth.Provider(provider)
	link.ProviderData = data
	return &link, nil
}

// Compile-time interface check.
var _ auth.SocialLinkRepository = (*SocialLinkRepository)(nil)
