package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/behavero/agencyos-sub001/app/models"
	"github.com/behavero/agencyos-sub001/app/repository"
	"github.com/behavero/agencyos-sub001/internal/pkg/platform"
	"github.com/behavero/agencyos-sub001/internal/pkg/revenue"
	"github.com/behavero/agencyos-sub001/internal/pkg/tokenmanager"
)

const (
	// maxPagesPerSync bounds a single pass against a misbehaving or
	// infinite-cursor upstream.
	maxPagesPerSync = 100

	// watermarkNudge keeps an incremental window from re-requesting the
	// final second of the previous one.
	watermarkNudge = time.Second

	maxImportPages = 50
)

// historicalFloor is where a first-ever sync starts: full history.
var historicalFloor = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// errPageCapReached marks a pass that hit the page safety cap with pages
// still remaining. The window was not fully covered, so the watermark must
// not advance; the next pass re-enters the same window.
var errPageCapReached = errors.New("earnings page safety cap reached")

// Error classes reported in sync results.
const (
	ErrorClassAuth        = "auth"
	ErrorClassRateLimited = "rate_limited"
	ErrorClassTransient   = "transient"
	ErrorClassInternal    = "internal"
)

// SyncResult reports the outcome of one creator's sync pass. Partial means
// some pages were fetched and stored but the window was not fully covered,
// so the watermark was intentionally left untouched.
type SyncResult struct {
	CreatorID  uint   `json:"creator_id"`
	Synced     int    `json:"synced"`
	Partial    bool   `json:"partial"`
	Error      string `json:"error,omitempty"`
	ErrorClass string `json:"error_class,omitempty"`
}

// OK reports whether the pass fully covered its window.
func (r SyncResult) OK() bool {
	return r.Error == "" && !r.Partial
}

// TokenSource is the slice of the token manager the engine needs.
type TokenSource interface {
	GetToken(ctx context.Context, tenantID uint) (string, error)
}

// EarningsClient is the slice of the upstream client the engine needs.
type EarningsClient interface {
	ListCreators(ctx context.Context, accessToken string, page int) (*platform.CreatorPage, error)
	ListEarnings(ctx context.Context, accessToken, creatorExtID string, since time.Time, cursor string) (*platform.EarningsPage, error)
}

// Engine drives incremental pulls of per-creator earnings into the local
// ledger. Passes are idempotent: re-running a window upserts the same rows.
type Engine struct {
	repos  *repository.Repositories
	tokens TokenSource
	client EarningsClient

	now func() time.Time
}

// NewEngine creates a sync engine.
func NewEngine(repos *repository.Repositories, tokens TokenSource, client EarningsClient) *Engine {
	return &Engine{
		repos:  repos,
		tokens: tokens,
		client: client,
		now:    time.Now,
	}
}

// SyncCreator runs one incremental sync pass for a single creator.
func (e *Engine) SyncCreator(ctx context.Context, creatorID uint) SyncResult {
	creator, err := e.repos.Creator.GetByID(creatorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return failedResult(creatorID, ErrorClassInternal, fmt.Errorf("creator %d not found", creatorID))
		}
		return failedResult(creatorID, ErrorClassInternal, err)
	}

	token, err := e.tokens.GetToken(ctx, creator.TenantID)
	if err != nil {
		return failedResult(creatorID, tokenErrorClass(err), err)
	}

	return e.syncCreatorWithToken(ctx, creator, token)
}

// SyncTenant fans SyncCreator out over all active creators of a tenant.
// Passes run concurrently and independently; one creator's failure lands in
// that creator's result slot and does not abort the others. The token is
// fetched once up front so at most one refresh serves the whole fan-out.
func (e *Engine) SyncTenant(ctx context.Context, tenantID uint) ([]SyncResult, error) {
	creators, err := e.repos.Creator.ListActiveByTenant(tenantID)
	if err != nil {
		return nil, fmt.Errorf("list creators: %w", err)
	}
	if len(creators) == 0 {
		return []SyncResult{}, nil
	}

	token, err := e.tokens.GetToken(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	results := make([]SyncResult, len(creators))
	var wg sync.WaitGroup
	for i := range creators {
		wg.Add(1)
		go func(i int, creator models.Creator) {
			defer wg.Done()
			results[i] = e.syncCreatorWithToken(ctx, &creator, token)
		}(i, creators[i])
	}
	wg.Wait()

	return results, nil
}

// ImportCreators pulls the upstream creator listing and upserts local
// creator rows. Existing sync state is preserved. Returns how many creators
// the upstream reported.
func (e *Engine) ImportCreators(ctx context.Context, tenantID uint) (int, error) {
	token, err := e.tokens.GetToken(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	imported := 0
	for page := 1; page <= maxImportPages; page++ {
		remote, err := e.client.ListCreators(ctx, token, page)
		if err != nil {
			return imported, fmt.Errorf("list creators page %d: %w", page, err)
		}

		batch := make([]models.Creator, 0, len(remote.Items))
		for _, item := range remote.Items {
			batch = append(batch, models.Creator{
				TenantID:    tenantID,
				ExternalID:  item.ID,
				Username:    item.Username,
				DisplayName: item.DisplayName,
				Active:      item.Active,
			})
		}
		if err := e.repos.Creator.UpsertBatch(batch); err != nil {
			return imported, fmt.Errorf("upsert creators: %w", err)
		}
		imported += len(batch)

		if !remote.HasMore {
			break
		}
	}

	log.Infof("[SyncEngine] tenant %d: imported %d creators", tenantID, imported)
	return imported, nil
}

func (e *Engine) syncCreatorWithToken(ctx context.Context, creator *models.Creator, token string) SyncResult {
	passStart := e.now()

	since := historicalFloor
	if creator.LastSyncedAt != nil {
		since = creator.LastSyncedAt.Add(watermarkNudge)
	}

	var fetched []platform.RawEarning
	var pageErr error
	cursor := ""
	for page := 0; ; page++ {
		if page >= maxPagesPerSync {
			pageErr = errPageCapReached
			break
		}
		earnings, err := e.client.ListEarnings(ctx, token, creator.ExternalID, since, cursor)
		if err != nil {
			pageErr = err
			break
		}
		fetched = append(fetched, earnings.Items...)
		if earnings.NextCursor == "" {
			break
		}
		cursor = earnings.NextCursor
	}

	// Store whatever was fetched, even on a broken pass. The upsert is
	// idempotent, so the retry that re-covers the window is cheap.
	transactions := make([]models.Transaction, 0, len(fetched))
	for _, raw := range fetched {
		tx := normalizeEarning(creator.TenantID, creator.ID, raw, passStart)
		if err := tx.Validate(); err != nil {
			log.Errorf("[SyncEngine] creator %d: dropping malformed earning %q: %v", creator.ID, raw.ID, err)
			continue
		}
		transactions = append(transactions, tx)
	}
	if err := e.repos.Transaction.UpsertBatch(transactions); err != nil {
		return failedResult(creator.ID, ErrorClassInternal, fmt.Errorf("upsert transactions: %w", err))
	}

	if pageErr != nil {
		class := ErrorClassTransient
		switch {
		case platform.IsAuthError(pageErr):
			// Likely a revoked connection; terminal for this pass.
			class = ErrorClassAuth
		case platform.IsRateLimitError(pageErr):
			class = ErrorClassRateLimited
		}
		log.Errorf("[SyncEngine] creator %d: partial sync, %d records stored before failure: %v", creator.ID, len(transactions), pageErr)
		return SyncResult{
			CreatorID:  creator.ID,
			Synced:     len(transactions),
			Partial:    true,
			Error:      pageErr.Error(),
			ErrorClass: class,
		}
	}

	// Full success: the watermark advances to the start of this pass, so
	// records arriving mid-pass fall into the next window.
	if err := e.repos.Creator.AdvanceWatermark(creator.ID, passStart); err != nil {
		return failedResult(creator.ID, ErrorClassInternal, fmt.Errorf("advance watermark: %w", err))
	}

	if err := e.refreshRevenueTotal(creator.ID); err != nil {
		log.Errorf("[SyncEngine] creator %d: revenue recompute failed: %v", creator.ID, err)
	}

	return SyncResult{CreatorID: creator.ID, Synced: len(transactions)}
}

// refreshRevenueTotal recomputes the materialized running total from the
// ledger and drops the stale cached figure. A cheap full aggregation, not
// incremental.
func (e *Engine) refreshRevenueTotal(creatorID uint) error {
	total, err := e.repos.Transaction.SumNetByCreator(creatorID)
	if err != nil {
		return err
	}
	if err := e.repos.Creator.UpdateTotalRevenue(creatorID, total); err != nil {
		return err
	}
	revenue.InvalidateCreator(creatorID)
	return nil
}

func failedResult(creatorID uint, class string, err error) SyncResult {
	return SyncResult{
		CreatorID:  creatorID,
		Error:      err.Error(),
		ErrorClass: class,
	}
}

func tokenErrorClass(err error) string {
	switch {
	case errors.Is(err, tokenmanager.ErrNoConnection), errors.Is(err, tokenmanager.ErrAuthExpired):
		return ErrorClassAuth
	default:
		return ErrorClassTransient
	}
}
