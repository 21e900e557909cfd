// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

// Package items maintains the local mirror of issue and PR metadata.
//
// The first sync walks every issue and PR page by page. Later syncs
// run two incremental passes: a new-item pass that re-walks from the
// start but stops after a long unbroken run of already-known numbers,
// and an updated-item pass driven by update timestamps with a small
// overlap window for clock skew. Sync metadata is only written after
// the item mirror itself persisted, so a failed sync never advances
// the watermark.
package items

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/repopulse/internal/githubapi"
	"github.com/tomtom215/repopulse/internal/logging"
	"github.com/tomtom215/repopulse/internal/metrics"
	"github.com/tomtom215/repopulse/internal/models"
	"github.com/tomtom215/repopulse/internal/store"
)

// StopThreshold is the number of consecutive already-known items after
// which the new-item pass assumes the remaining pages hold nothing
// new. This leans on GitHub returning items in near-monotonic creation
// order; an out-of-order new item past the threshold would be missed
// until it is next updated.
const StopThreshold = 100

// ItemsClient is the slice of the GitHub client the syncer uses.
type ItemsClient interface {
	IssuesPage(ctx context.Context, cursor string) (*githubapi.ItemPage, error)
	IssuesUpdatedSincePage(ctx context.Context, since time.Time, cursor string) (*githubapi.ItemPage, error)
	PRsPage(ctx context.Context, cursor string) (*githubapi.ItemPage, error)
	PRsByUpdatedDescPage(ctx context.Context, cursor string) (*githubapi.ItemPage, error)
}

// Storage is the slice of the key-value store the syncer uses.
type Storage interface {
	GetJSON(key string, v interface{}) error
	PutJSON(key string, v interface{}, ttl time.Duration) error
	Delete(key string) error
}

// Config holds the syncer's tunables.
type Config struct {
	// PageDelay is the pause between GraphQL pages.
	PageDelay time.Duration
	// Overlap is subtracted from the recorded lastSync when computing
	// the updated-items threshold, to tolerate clock skew.
	Overlap time.Duration
	// StopThreshold overrides the consecutive-known stop heuristic.
	// Zero means the package default.
	StopThreshold int
}

// Syncer keeps the item mirror consistent with upstream.
type Syncer struct {
	client ItemsClient
	store  Storage
	cfg    Config
	now    func() time.Time
}

// New creates a Syncer.
func New(client ItemsClient, st Storage, cfg Config) *Syncer {
	if cfg.Overlap <= 0 {
		cfg.Overlap = 10 * time.Minute
	}
	if cfg.StopThreshold <= 0 {
		cfg.StopThreshold = StopThreshold
	}
	return &Syncer{client: client, store: st, cfg: cfg, now: time.Now}
}

// Sync runs one synchronization pass. The first run (no metadata yet)
// and force both perform a full walk; force additionally deletes the
// existing mirror first, which is destructive and exists only for
// operator-triggered rebuilds.
func (s *Syncer) Sync(ctx context.Context, force bool) (*models.SyncResult, error) {
	start := s.now()

	var meta models.SyncMetadata
	haveMeta := true
	if err := s.store.GetJSON(store.KeyItemsMeta, &meta); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("read sync metadata: %w", err)
		}
		haveMeta = false
	}

	itemsByNumber := make(map[int]*models.GitHubItem)
	if haveMeta && !force {
		if err := s.store.GetJSON(store.KeyItems, &itemsByNumber); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("read item mirror: %w", err)
		}
	}

	if force {
		if err := s.store.Delete(store.KeyItems); err != nil {
			return nil, fmt.Errorf("delete item mirror: %w", err)
		}
		if err := s.store.Delete(store.KeyItemsMeta); err != nil {
			return nil, fmt.Errorf("delete sync metadata: %w", err)
		}
	}

	var (
		newItems     int
		updatedItems int
		err          error
	)
	if !haveMeta || force {
		newItems, err = s.fullSync(ctx, itemsByNumber)
	} else {
		newItems, updatedItems, err = s.incrementalSync(ctx, itemsByNumber, meta.LastSync)
	}
	if err != nil {
		metrics.SyncErrors.WithLabelValues("items", "fetch").Inc()
		return nil, err
	}

	newMeta := buildMetadata(itemsByNumber, start.UTC())
	// Items first; metadata only advances once the mirror is durable.
	if err := s.store.PutJSON(store.KeyItems, itemsByNumber, 0); err != nil {
		return nil, fmt.Errorf("store item mirror: %w", err)
	}
	if err := s.store.PutJSON(store.KeyItemsMeta, newMeta, 0); err != nil {
		return nil, fmt.Errorf("store sync metadata: %w", err)
	}

	metrics.ItemsMirrored.WithLabelValues(models.ItemTypeIssue).Set(float64(newMeta.IssueCount))
	metrics.ItemsMirrored.WithLabelValues(models.ItemTypePR).Set(float64(newMeta.PRCount))
	metrics.RecordSyncSuccess("items", s.now().Sub(start))

	result := &models.SyncResult{
		NewItems:     newItems,
		UpdatedItems: updatedItems,
		TotalItems:   len(itemsByNumber),
		IssueCount:   newMeta.IssueCount,
		PRCount:      newMeta.PRCount,
		OldestDate:   newMeta.OldestDate,
		SyncDuration: s.now().Sub(start).String(),
	}
	logging.Ctx(ctx).Info().
		Int("new", result.NewItems).
		Int("updated", result.UpdatedItems).
		Int("total", result.TotalItems).
		Bool("force", force).
		Msg("Item sync complete")
	return result, nil
}

// fullSync walks every issue, then every PR, overwriting the mirror
// row for each node. Returns the number of previously unknown items.
func (s *Syncer) fullSync(ctx context.Context, itemsByNumber map[int]*models.GitHubItem) (int, error) {
	newItems := 0
	for _, pager := range []func(context.Context, string) (*githubapi.ItemPage, error){
		s.client.IssuesPage,
		s.client.PRsPage,
	} {
		cursor := ""
		for {
			page, err := pager(ctx, cursor)
			if err != nil {
				return newItems, fmt.Errorf("full sync: %w", err)
			}
			for _, node := range page.Nodes {
				if _, known := itemsByNumber[node.Number]; !known {
					newItems++
				}
				itemsByNumber[node.Number] = nodeToItem(node)
			}
			if !page.HasNextPage {
				break
			}
			cursor = page.EndCursor
			if err := s.pageDelay(ctx); err != nil {
				return newItems, err
			}
		}
	}
	return newItems, nil
}

// incrementalSync runs the new-item pass followed by the updated-item
// pass.
func (s *Syncer) incrementalSync(ctx context.Context, itemsByNumber map[int]*models.GitHubItem, lastSync time.Time) (int, int, error) {
	newItems, err := s.syncNewItems(ctx, itemsByNumber)
	if err != nil {
		return newItems, 0, err
	}

	since := lastSync.Add(-s.cfg.Overlap)
	moreNew, updatedItems, err := s.syncUpdatedItems(ctx, itemsByNumber, since)
	newItems += moreNew
	if err != nil {
		return newItems, updatedItems, err
	}
	return newItems, updatedItems, nil
}

// syncNewItems re-walks issues and PRs from the start (the API cannot
// filter "number greater than X" server-side) and stops once a long
// unbroken run of known numbers shows up. Any unknown item resets the
// run.
func (s *Syncer) syncNewItems(ctx context.Context, itemsByNumber map[int]*models.GitHubItem) (int, error) {
	newItems := 0
	for _, pager := range []func(context.Context, string) (*githubapi.ItemPage, error){
		s.client.IssuesPage,
		s.client.PRsPage,
	} {
		cursor := ""
		consecutiveKnown := 0
	pages:
		for {
			page, err := pager(ctx, cursor)
			if err != nil {
				return newItems, fmt.Errorf("new-item sync: %w", err)
			}
			for _, node := range page.Nodes {
				if _, known := itemsByNumber[node.Number]; known {
					consecutiveKnown++
					if consecutiveKnown >= s.cfg.StopThreshold {
						break pages
					}
					continue
				}
				consecutiveKnown = 0
				newItems++
				itemsByNumber[node.Number] = nodeToItem(node)
			}
			if !page.HasNextPage {
				break
			}
			cursor = page.EndCursor
			if err := s.pageDelay(ctx); err != nil {
				return newItems, err
			}
		}
	}
	return newItems, nil
}

// syncUpdatedItems picks up state changes to known items. Issues use
// the API's native since filter. The PR connection has none, so PRs
// walk newest-update-first and stop at the first node older than the
// threshold; every later page is guaranteed older still.
func (s *Syncer) syncUpdatedItems(ctx context.Context, itemsByNumber map[int]*models.GitHubItem, since time.Time) (int, int, error) {
	newItems, updatedItems := 0, 0

	apply := func(node githubapi.ItemNode) {
		prev, known := itemsByNumber[node.Number]
		switch {
		case !known:
			newItems++
		case !prev.UpdatedAt.Equal(node.UpdatedAt):
			updatedItems++
		}
		// Unchanged items are still overwritten; the write is
		// idempotent and not counted.
		itemsByNumber[node.Number] = nodeToItem(node)
	}

	cursor := ""
	for {
		page, err := s.client.IssuesUpdatedSincePage(ctx, since, cursor)
		if err != nil {
			return newItems, updatedItems, fmt.Errorf("updated-issue sync: %w", err)
		}
		for _, node := range page.Nodes {
			apply(node)
		}
		if !page.HasNextPage {
			break
		}
		cursor = page.EndCursor
		if err := s.pageDelay(ctx); err != nil {
			return newItems, updatedItems, err
		}
	}

	cursor = ""
prPages:
	for {
		page, err := s.client.PRsByUpdatedDescPage(ctx, cursor)
		if err != nil {
			return newItems, updatedItems, fmt.Errorf("updated-pr sync: %w", err)
		}
		for _, node := range page.Nodes {
			if node.UpdatedAt.Before(since) {
				break prPages
			}
			apply(node)
		}
		if !page.HasNextPage {
			break
		}
		cursor = page.EndCursor
		if err := s.pageDelay(ctx); err != nil {
			return newItems, updatedItems, err
		}
	}

	return newItems, updatedItems, nil
}

func (s *Syncer) pageDelay(ctx context.Context) error {
	if s.cfg.PageDelay <= 0 {
		return nil
	}
	select {
	case <-time.After(s.cfg.PageDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// nodeToItem maps an upstream node onto a mirror row. The merged flag
// takes precedence over the raw state for PRs; issues only ever map to
// open or closed.
func nodeToItem(node githubapi.ItemNode) *models.GitHubItem {
	item := &models.GitHubItem{
		Number:    node.Number,
		Type:      models.ItemTypeIssue,
		Title:     node.Title,
		State:     models.StateOpen,
		CreatedAt: node.CreatedAt,
		UpdatedAt: node.UpdatedAt,
		ClosedAt:  node.ClosedAt,
		Comments:  node.Comments.TotalCount,
	}
	if node.IsPR {
		item.Type = models.ItemTypePR
	}

	switch {
	case node.IsPR && node.Merged:
		item.State = models.StateMerged
	case node.State == "CLOSED":
		item.State = models.StateClosed
	}

	if node.Author != nil {
		item.Author = &models.ItemAuthor{Login: node.Author.Login, AvatarURL: node.Author.AvatarURL}
	}
	item.Labels = make([]models.ItemLabel, 0, len(node.Labels.Nodes))
	for _, l := range node.Labels.Nodes {
		item.Labels = append(item.Labels, models.ItemLabel{Name: l.Name, Color: l.Color})
	}
	return item
}

// buildMetadata recomputes the bookkeeping record from the full item
// set.
func buildMetadata(itemsByNumber map[int]*models.GitHubItem, lastSync time.Time) *models.SyncMetadata {
	meta := &models.SyncMetadata{LastSync: lastSync}
	for num, item := range itemsByNumber {
		if num > meta.HighestNumber {
			meta.HighestNumber = num
		}
		if meta.OldestDate == nil || item.CreatedAt.Before(*meta.OldestDate) {
			created := item.CreatedAt
			meta.OldestDate = &created
		}
		if item.Type == models.ItemTypePR {
			meta.PRCount++
		} else {
			meta.IssueCount++
		}
	}
	return meta
}

// Mirror loads the full item set. Returns store.ErrNotFound untouched
// when no sync has run yet.
func Mirror(st Storage) (map[int]*models.GitHubItem, error) {
	itemsByNumber := make(map[int]*models.GitHubItem)
	if err := st.GetJSON(store.KeyItems, &itemsByNumber); err != nil {
		return nil, err
	}
	return itemsByNumber, nil
}

// Source adapts the store into the read-only item provider the view
// endpoints consume.
type Source struct {
	Store Storage
}

// Items loads the mirrored item set.
func (s Source) Items() (map[int]*models.GitHubItem, error) {
	return Mirror(s.Store)
}
