package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AddIdentity attaches an identifier to an entity. The value must already be
// normalized. Returns false without error when the identical identity already
// exists on the same entity. A strong identifier already bound to a different
// entity of the same owner violates the partial unique index; that surfaces
// as an error the caller treats as a duplicate signal.
func (r *Repository) AddIdentity(ctx context.Context, ownerID uuid.UUID, ident *Identity) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO identities (owner_id, entity_id, namespace, value, verified)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (entity_id, namespace, value) DO NOTHING
	`, ownerID, ident.EntityID, ident.Namespace, ident.Value, ident.Verified)
	if err != nil {
		return false, fmt.Errorf("failed to add identity: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListIdentities returns all identities attached to an entity.
func (r *Repository) ListIdentities(ctx context.Context, ownerID, entityID uuid.UUID) ([]*Identity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, entity_id, namespace, value, verified, created_at
		FROM identities
		WHERE owner_id = $1 AND entity_id = $2
		ORDER BY namespace, value
	`, ownerID, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	var identities []*Identity
	for rows.Next() {
		var ident Identity
		if err := rows.Scan(&ident.ID, &ident.EntityID, &ident.Namespace, &ident.Value, &ident.Verified, &ident.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		identities = append(identities, &ident)
	}
	return identities, rows.Err()
}

// FindEntityByIdentity looks up the entity holding a normalized identifier.
// Merge redirects are followed so callers always land on the surviving
// record. Returns (nil, nil) when no entity holds the value.
func (r *Repository) FindEntityByIdentity(ctx context.Context, ownerID uuid.UUID, ns Namespace, value string) (*Entity, error) {
	var entityID uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT entity_id
		FROM identities
		WHERE owner_id = $1 AND namespace = $2 AND value = $3
		LIMIT 1
	`, ownerID, ns, value).Scan(&entityID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find entity by identity: %w", err)
	}
	return r.ResolveEntity(ctx, ownerID, entityID)
}

// FindEntitiesByName returns active entities whose normalized name identities
// match the given name exactly (case-insensitive).
func (r *Repository) FindEntitiesByName(ctx context.Context, ownerID uuid.UUID, name string) ([]*Entity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT `+prefixedEntityColumns("e")+`
		FROM entities e
		JOIN identities i ON i.entity_id = e.id
		WHERE e.owner_id = $1 AND e.status = 'active'
		  AND i.namespace IN ('freeform_name', 'calendar_name')
		  AND lower(i.value) = lower($2)
		ORDER BY e.updated_at DESC
	`, ownerID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find entities by name: %w", err)
	}
	defer rows.Close()

	return scanEntities(rows)
}

// FindEntitiesByFirstName returns active entities whose display name starts
// with the given first name token (case-insensitive). Used to resolve a
// mention like "Anna" against "Anna Kovaleva".
func (r *Repository) FindEntitiesByFirstName(ctx context.Context, ownerID uuid.UUID, firstName string) ([]*Entity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entityColumns+`
		FROM entities
		WHERE owner_id = $1 AND status = 'active'
		  AND lower(split_part(display_name, ' ', 1)) = lower($2)
	`, ownerID, firstName)
	if err != nil {
		return nil, fmt.Errorf("failed to find entities by first name: %w", err)
	}
	defer rows.Close()

	return scanEntities(rows)
}

// IdentityMatch is one entity found to share a strong identifier with another.
type IdentityMatch struct {
	EntityID  uuid.UUID
	Namespace Namespace
	Value     string
}

// FindSharedIdentityMatches returns other active entities of the same owner
// that share a strong identifier with the given entity.
func (r *Repository) FindSharedIdentityMatches(ctx context.Context, ownerID, entityID uuid.UUID) ([]IdentityMatch, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT other.entity_id, mine.namespace, mine.value
		FROM identities mine
		JOIN identities other
		  ON other.owner_id = mine.owner_id
		 AND other.namespace = mine.namespace
		 AND other.value = mine.value
		 AND other.entity_id <> mine.entity_id
		JOIN entities e ON e.id = other.entity_id AND e.status = 'active'
		WHERE mine.owner_id = $1 AND mine.entity_id = $2
		  AND mine.namespace IN ('email', 'linkedin_url', 'telegram_username')
	`, ownerID, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to find shared identity matches: %w", err)
	}
	defer rows.Close()

	var matches []IdentityMatch
	for rows.Next() {
		var m IdentityMatch
		if err := rows.Scan(&m.EntityID, &m.Namespace, &m.Value); err != nil {
			return nil, fmt.Errorf("failed to scan identity match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// SharedIdentityPair is a pair of entities linked by a strong identifier.
type SharedIdentityPair struct {
	AID       uuid.UUID
	BID       uuid.UUID
	Namespace Namespace
	Value     string
}

// FindSharedIdentityPairs returns all pairs of active entities sharing a
// strong identifier, in canonical pair order, for batch duplicate scans.
func (r *Repository) FindSharedIdentityPairs(ctx context.Context, ownerID uuid.UUID) ([]SharedIdentityPair, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT
		  LEAST(a.entity_id::text, b.entity_id::text)::uuid,
		  GREATEST(a.entity_id::text, b.entity_id::text)::uuid,
		  a.namespace, a.value
		FROM identities a
		JOIN identities b
		  ON b.owner_id = a.owner_id
		 AND b.namespace = a.namespace
		 AND b.value = a.value
		 AND a.entity_id < b.entity_id
		JOIN entities ea ON ea.id = a.entity_id AND ea.status = 'active'
		JOIN entities eb ON eb.id = b.entity_id AND eb.status = 'active'
		WHERE a.owner_id = $1
		  AND a.namespace IN ('email', 'linkedin_url', 'telegram_username')
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find shared identity pairs: %w", err)
	}
	defer rows.Close()

	var pairs []SharedIdentityPair
	for rows.Next() {
		var p SharedIdentityPair
		if err := rows.Scan(&p.AID, &p.BID, &p.Namespace, &p.Value); err != nil {
			return nil, fmt.Errorf("failed to scan identity pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// NameMatch is one entity found by trigram name similarity.
type NameMatch struct {
	EntityID   uuid.UUID
	Name       string
	Similarity float64
}

// FindNameMatches returns other active entities whose display name is
// trigram-similar to the given entity's, at or above the threshold.
func (r *Repository) FindNameMatches(ctx context.Context, ownerID, entityID uuid.UUID, threshold float64) ([]NameMatch, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT other.id, other.display_name,
		       similarity(lower(me.display_name), lower(other.display_name))
		FROM entities me
		JOIN entities other
		  ON other.owner_id = me.owner_id
		 AND other.id <> me.id
		 AND other.status = 'active'
		WHERE me.owner_id = $1 AND me.id = $2
		  AND similarity(lower(me.display_name), lower(other.display_name)) >= $3
		ORDER BY 3 DESC
	`, ownerID, entityID, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to find name matches: %w", err)
	}
	defer rows.Close()

	var matches []NameMatch
	for rows.Next() {
		var m NameMatch
		if err := rows.Scan(&m.EntityID, &m.Name, &m.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan name match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// NamePair is a pair of active entities with trigram-similar display names.
type NamePair struct {
	AID        uuid.UUID
	BID        uuid.UUID
	NameA      string
	NameB      string
	Similarity float64
}

// FindNamePairs returns all pairs of active entities with trigram-similar
// display names, in canonical pair order, for batch duplicate scans.
func (r *Repository) FindNamePairs(ctx context.Context, ownerID uuid.UUID, threshold float64) ([]NamePair, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, b.id, a.display_name, b.display_name,
		       similarity(lower(a.display_name), lower(b.display_name))
		FROM entities a
		JOIN entities b
		  ON b.owner_id = a.owner_id
		 AND a.id < b.id
		 AND b.status = 'active'
		WHERE a.owner_id = $1 AND a.status = 'active'
		  AND similarity(lower(a.display_name), lower(b.display_name)) >= $2
		ORDER BY 5 DESC
	`, ownerID, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to find name pairs: %w", err)
	}
	defer rows.Close()

	var pairs []NamePair
	for rows.Next() {
		var p NamePair
		if err := rows.Scan(&p.AID, &p.BID, &p.NameA, &p.NameB, &p.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan name pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

func prefixedEntityColumns(alias string) string {
	return alias + ".id, " + alias + ".owner_id, " + alias + ".display_name, " +
		alias + ".status, " + alias + ".merged_into_id, " + alias + ".summary, " +
		alias + ".batch_id, " + alias + ".created_at, " + alias + ".updated_at"
}
