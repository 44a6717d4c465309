// Package sync implements Chacrab's bidirectional sync engine: merging a
// local and a remote repository.Repository into a single consistent view
// using a deterministic total order over (sync_version, updated_at,
// deleted). The engine does not detect replays: a side with a lower
// sync_version is always overwritten by the higher one, and
// Report.ReplaysRejected is never incremented.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chacrab/chacrab/pkg/model"
	"github.com/chacrab/chacrab/pkg/repository"
)

// Report tallies what a single Bidirectional call did, mirroring
// spec.md's SyncReport.
type Report struct {
	Uploaded          int
	Downloaded        int
	Tombstoned        int
	ConflictsResolved int
	ReplaysRejected   int
}

// Engine runs bidirectional sync between two repositories. It holds no
// state of its own: every decision is derived from the sync_version,
// updated_at, and deleted fields already persisted on each side.
type Engine struct{}

// New returns a sync Engine.
func New() *Engine { return &Engine{} }

// record is a side's view of one item id, normalized so item and
// tombstone records can be compared uniformly.
type record struct {
	version   uint64
	updatedAt time.Time
	deleted   bool
	item      *model.VaultItem
	tombstone *model.SyncTombstone
}

// Bidirectional merges local and remote so that afterward both sides
// agree on the winning state of every item, per the total order described
// in the package doc.
func (e *Engine) Bidirectional(ctx context.Context, local, remote repository.Repository) (*Report, error) {
	localItems, localTombstones, err := local.ListWithTombstones(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: list local: %w", err)
	}
	remoteItems, remoteTombstones, err := remote.ListWithTombstones(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: list remote: %w", err)
	}

	localByID := indexRecords(localItems, localTombstones)
	remoteByID := indexRecords(remoteItems, remoteTombstones)

	ids := make(map[uuid.UUID]struct{}, len(localByID)+len(remoteByID))
	for id := range localByID {
		ids[id] = struct{}{}
	}
	for id := range remoteByID {
		ids[id] = struct{}{}
	}

	report := &Report{}
	for id := range ids {
		localRec, hasLocal := localByID[id]
		remoteRec, hasRemote := remoteByID[id]

		switch {
		case hasLocal && !hasRemote:
			if err := apply(ctx, remote, localRec); err != nil {
				return nil, fmt.Errorf("sync: push %s to remote: %w", id, err)
			}
			tallyApply(report, localRec, true)

		case !hasLocal && hasRemote:
			if err := apply(ctx, local, remoteRec); err != nil {
				return nil, fmt.Errorf("sync: pull %s from remote: %w", id, err)
			}
			tallyApply(report, remoteRec, false)

		default:
			if err := e.reconcile(ctx, local, remote, localRec, remoteRec, report); err != nil {
				return nil, fmt.Errorf("sync: reconcile %s: %w", id, err)
			}
		}
	}

	return report, nil
}

func (e *Engine) reconcile(ctx context.Context, local, remote repository.Repository, localRec, remoteRec record, report *Report) error {
	switch {
	case localRec.version > remoteRec.version:
		// remote is simply behind: local's strictly newer record is a
		// legitimate forward push, not a replay (§4.7 reserves replay
		// rejection for a stale *incoming* write, and never mutates).
		report.ConflictsResolved++
		if err := apply(ctx, remote, localRec); err != nil {
			return err
		}
		tallyApply(report, localRec, true)

	case localRec.version < remoteRec.version:
		report.ConflictsResolved++
		if err := apply(ctx, local, remoteRec); err != nil {
			return err
		}
		tallyApply(report, remoteRec, false)

	default:
		if recordsEqual(localRec, remoteRec) {
			return nil
		}
		report.ConflictsResolved++
		winner := resolveTie(localRec, remoteRec)
		if winner == localRec {
			if err := apply(ctx, remote, localRec); err != nil {
				return err
			}
			tallyApply(report, localRec, true)
		} else {
			if err := apply(ctx, local, remoteRec); err != nil {
				return err
			}
			tallyApply(report, remoteRec, false)
		}
	}
	return nil
}

// resolveTie breaks a same-sync_version conflict: later updated_at wins;
// if updated_at also ties, the tombstone wins over the live item.
func resolveTie(a, b record) record {
	if a.updatedAt.After(b.updatedAt) {
		return a
	}
	if b.updatedAt.After(a.updatedAt) {
		return b
	}
	if a.deleted && !b.deleted {
		return a
	}
	if b.deleted && !a.deleted {
		return b
	}
	return a
}

func recordsEqual(a, b record) bool {
	if a.deleted != b.deleted {
		return false
	}
	if a.deleted {
		return true // same id, same version, both tombstoned: nothing to reconcile
	}
	return string(a.item.EncryptedData) == string(b.item.EncryptedData) &&
		a.item.Nonce == b.item.Nonce &&
		a.item.Title == b.item.Title &&
		a.item.Username == b.item.Username &&
		a.item.URL == b.item.URL
}

func apply(ctx context.Context, repo repository.Repository, rec record) error {
	if rec.deleted {
		return repo.UpsertTombstone(ctx, *rec.tombstone)
	}
	return repo.Upsert(ctx, rec.item)
}

func tallyApply(report *Report, rec record, toRemote bool) {
	if rec.deleted {
		report.Tombstoned++
		return
	}
	if toRemote {
		report.Uploaded++
	} else {
		report.Downloaded++
	}
}

func indexRecords(items []model.VaultItem, tombstones []model.SyncTombstone) map[uuid.UUID]record {
	out := make(map[uuid.UUID]record, len(items)+len(tombstones))
	for i := range items {
		item := items[i]
		out[item.ID] = record{version: item.SyncVersion, updatedAt: item.UpdatedAt, deleted: false, item: &item}
	}
	for i := range tombstones {
		t := tombstones[i]
		out[t.ID] = record{version: t.SyncVersion, updatedAt: t.DeletedAt, deleted: true, tombstone: &t}
	}
	return out
}
