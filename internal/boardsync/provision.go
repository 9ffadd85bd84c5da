// internal/boardsync/provision.go
package boardsync

import (
	"context"
	"fmt"
	"log"
	"time"

	"intake-service/pkg/models"
)

// ColumnAPI is the slice of the board client the provisioner needs.
type ColumnAPI interface {
	ListColumns(ctx context.Context, boardID string) ([]Column, error)
	CreateColumn(ctx context.Context, boardID string, def FieldDefinition) (string, error)
}

// Registry is the persisted slug→remote-id cache, keyed per board by scope then slug.
type Registry interface {
	Entries(ctx context.Context, boardID string) ([]models.SchemaRegistryEntry, error)
	// Persist upserts entries in one batch; called at most once per EnsureFields run.
	Persist(ctx context.Context, entries []models.SchemaRegistryEntry) error
}

// Provisioner guarantees every catalog field has a live remote column before a sync
// writes values. Idempotent and safe to call repeatedly: the worst a racing caller can
// do is a redundant lookup or one duplicate column, which the title-match pass
// reconciles on the next run.
type Provisioner struct {
	api      ColumnAPI
	registry Registry
	boardID  string
	now      func() time.Time
}

func NewProvisioner(api ColumnAPI, registry Registry, boardID string) *Provisioner {
	return &Provisioner{api: api, registry: registry, boardID: boardID, now: time.Now}
}

// EnsureFields resolves the effective field set for scope to remote column ids,
// creating missing columns as needed. Any remote failure aborts the whole call — the
// caller must treat the sync attempt as failed rather than proceed with partial ids.
func (p *Provisioner) EnsureFields(ctx context.Context, scope Scope) (ColumnIDMap, error) {
	entries, err := p.registry.Entries(ctx, p.boardID)
	if err != nil {
		return ColumnIDMap{}, fmt.Errorf("load schema registry for board %s: %w", p.boardID, err)
	}
	cached := make(map[string]models.SchemaRegistryEntry, len(entries))
	for _, e := range entries {
		cached[e.Scope+"/"+e.Slug] = e
	}

	// One fresh listing serves both the stale-id check and the title-match fallback.
	columns, err := p.api.ListColumns(ctx, p.boardID)
	if err != nil {
		return ColumnIDMap{}, err
	}
	liveIDs := make(map[string]bool, len(columns))
	byTitle := make(map[string]string, len(columns))
	for _, col := range columns {
		liveIDs[col.ID] = true
		byTitle[col.Title] = col.ID
	}

	ids := ColumnIDMap{Shared: make(map[string]string), Specific: make(map[string]string)}
	var upserts []models.SchemaRegistryEntry

	for _, def := range DefinitionsFor(scope) {
		remoteID, fresh, err := p.resolveField(ctx, def, cached, liveIDs, byTitle)
		if err != nil {
			return ColumnIDMap{}, err
		}
		if fresh {
			upserts = append(upserts, models.SchemaRegistryEntry{
				BoardID:          p.boardID,
				Scope:            string(def.Scope),
				Slug:             def.Slug,
				RemoteID:         remoteID,
				Title:            def.Title,
				ValueKind:        string(def.Kind),
				CreatedAtEpochMs: p.now().UnixMilli(),
			})
		}
		if def.Scope == ScopeShared {
			ids.Shared[def.Slug] = remoteID
		} else {
			ids.Specific[def.Slug] = remoteID
		}
	}

	// Batched once per call to bound registry write volume.
	if len(upserts) > 0 {
		if err := p.registry.Persist(ctx, upserts); err != nil {
			return ColumnIDMap{}, fmt.Errorf("persist schema registry for board %s: %w", p.boardID, err)
		}
		log.Printf("📝 [SCHEMA] Registered %d field(s) for board %s scope %s", len(upserts), p.boardID, scope)
	}
	return ids, nil
}

// resolveField runs the lookup chain for one field: cached id (verified against the
// live schema, defending against manual deletion on the remote side) → exact title
// match (defending against an empty registry when the column already exists, e.g.
// multi-instance deployments) → remote creation. fresh reports whether the registry
// needs a new entry.
func (p *Provisioner) resolveField(ctx context.Context, def FieldDefinition, cached map[string]models.SchemaRegistryEntry, liveIDs map[string]bool, byTitle map[string]string) (remoteID string, fresh bool, err error) {
	if entry, ok := cached[string(def.Scope)+"/"+def.Slug]; ok {
		if liveIDs[entry.RemoteID] {
			return entry.RemoteID, false, nil
		}
		log.Printf("⚠️ [SCHEMA] Cached column %s for %s/%s no longer exists on board %s; re-resolving", entry.RemoteID, def.Scope, def.Slug, p.boardID)
	}
	if id, ok := byTitle[def.Title]; ok {
		return id, true, nil
	}
	id, err := p.api.CreateColumn(ctx, p.boardID, def)
	if err != nil {
		return "", false, err
	}
	liveIDs[id] = true
	byTitle[def.Title] = id
	log.Printf("✅ [SCHEMA] Created column %q (%s) on board %s", def.Title, id, p.boardID)
	return id, true, nil
}
