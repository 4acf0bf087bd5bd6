package syncengine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/behavero/agencyos-sub001/app/models"
	"github.com/behavero/agencyos-sub001/app/repository"
	"github.com/behavero/agencyos-sub001/internal/pkg/platform"
	"github.com/behavero/agencyos-sub001/internal/pkg/tokenmanager"
)

// fakeCreatorRepo is an in-memory CreatorRepository.
type fakeCreatorRepo struct {
	mu       sync.Mutex
	creators map[uint]*models.Creator
}

func newFakeCreatorRepo(creators ...*models.Creator) *fakeCreatorRepo {
	m := make(map[uint]*models.Creator, len(creators))
	for _, c := range creators {
		copied := *c
		m[c.ID] = &copied
	}
	return &fakeCreatorRepo{creators: m}
}

func (f *fakeCreatorRepo) GetByID(id uint) (*models.Creator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creators[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *c
	return &copied, nil
}

func (f *fakeCreatorRepo) GetByExternalID(tenantID uint, externalID string) (*models.Creator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.creators {
		if c.TenantID == tenantID && c.ExternalID == externalID {
			copied := *c
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeCreatorRepo) ListByTenant(tenantID uint) ([]models.Creator, error) {
	return f.ListActiveByTenant(tenantID)
}

func (f *fakeCreatorRepo) ListActiveByTenant(tenantID uint) ([]models.Creator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Creator
	for _, c := range f.creators {
		if c.TenantID == tenantID && c.Active {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeCreatorRepo) UpsertBatch(creators []models.Creator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range creators {
		found := false
		for _, existing := range f.creators {
			if existing.TenantID == c.TenantID && existing.ExternalID == c.ExternalID {
				existing.Username = c.Username
				existing.DisplayName = c.DisplayName
				existing.Active = c.Active
				found = true
				break
			}
		}
		if !found {
			copied := c
			copied.ID = uint(len(f.creators) + 1)
			f.creators[copied.ID] = &copied
		}
	}
	return nil
}

func (f *fakeCreatorRepo) AdvanceWatermark(creatorID uint, t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.creators[creatorID]
	if c.LastSyncedAt == nil || c.LastSyncedAt.Before(t) {
		c.LastSyncedAt = &t
	}
	return nil
}

func (f *fakeCreatorRepo) UpdateTotalRevenue(creatorID uint, total float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[creatorID].TotalRevenue = total
	return nil
}

func (f *fakeCreatorRepo) Count() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.creators)), nil
}

// fakeTransactionRepo is an in-memory TransactionRepository keyed on the
// dedupe key, mirroring the upsert semantics of the real one.
type fakeTransactionRepo struct {
	mu   sync.Mutex
	rows map[string]models.Transaction
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{rows: make(map[string]models.Transaction)}
}

func (f *fakeTransactionRepo) UpsertBatch(transactions []models.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range transactions {
		if existing, ok := f.rows[tx.DedupeKey]; ok {
			existing.NetAmount = tx.NetAmount
			existing.PlatformFee = tx.PlatformFee
			existing.SyncedAt = tx.SyncedAt
			f.rows[tx.DedupeKey] = existing
			continue
		}
		f.rows[tx.DedupeKey] = tx
	}
	return nil
}

func (f *fakeTransactionRepo) GetByDedupeKey(key string) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.rows[key]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &tx, nil
}

func (f *fakeTransactionRepo) ListByCreatorSince(creatorID uint, since time.Time, offset, limit int) ([]models.Transaction, error) {
	return nil, nil
}

func (f *fakeTransactionRepo) ListByTenantBetween(tenantID uint, from, to time.Time, offset, limit int) ([]models.Transaction, error) {
	return nil, nil
}

func (f *fakeTransactionRepo) SumNetByCreator(creatorID uint) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total float64
	for _, tx := range f.rows {
		if tx.CreatorID == creatorID {
			total += tx.NetAmount
		}
	}
	return total, nil
}

func (f *fakeTransactionRepo) SumNetByTenant(tenantID uint) (float64, error) {
	return 0, nil
}

func (f *fakeTransactionRepo) CountByCreator(creatorID uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, tx := range f.rows {
		if tx.CreatorID == creatorID {
			count++
		}
	}
	return count, nil
}

// fakeTokenSource hands out a static token (or error).
type fakeTokenSource struct {
	token string
	err   error
	calls int
}

func (f *fakeTokenSource) GetToken(ctx context.Context, tenantID uint) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

// scriptedClient drives ListEarnings/ListCreators from test closures.
type scriptedClient struct {
	mu            sync.Mutex
	earningsCalls int
	earningsFn    func(creatorExtID, cursor string, call int) (*platform.EarningsPage, error)
	lastSince     time.Time
	creatorPages  []platform.CreatorPage
	creatorCalls  int
}

func (s *scriptedClient) ListEarnings(ctx context.Context, accessToken, creatorExtID string, since time.Time, cursor string) (*platform.EarningsPage, error) {
	s.mu.Lock()
	s.earningsCalls++
	call := s.earningsCalls
	s.lastSince = since
	s.mu.Unlock()
	return s.earningsFn(creatorExtID, cursor, call)
}

func (s *scriptedClient) ListCreators(ctx context.Context, accessToken string, page int) (*platform.CreatorPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creatorCalls++
	if page < 1 || page > len(s.creatorPages) {
		return &platform.CreatorPage{}, nil
	}
	return &s.creatorPages[page-1], nil
}

func earning(id, source string, gross, net int64, fan string) platform.RawEarning {
	return platform.RawEarning{
		ID:         id,
		Source:     source,
		GrossCents: gross,
		NetCents:   net,
		Currency:   "USD",
		FanID:      fan,
		CreatedAt:  time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func newTestEngine(creators *fakeCreatorRepo, txs *fakeTransactionRepo, client *scriptedClient) (*Engine, time.Time) {
	repos := &repository.Repositories{
		Creator:     creators,
		Transaction: txs,
	}
	e := NewEngine(repos, &fakeTokenSource{token: "tok"}, client)
	passTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return passTime }
	return e, passTime
}

func TestSyncCreator_FirstSyncPullsFullHistory(t *testing.T) {
	creators := newFakeCreatorRepo(&models.Creator{ID: 1, TenantID: 7, ExternalID: "cr_1", Active: true})
	txs := newFakeTransactionRepo()
	client := &scriptedClient{earningsFn: func(extID, cursor string, call int) (*platform.EarningsPage, error) {
		switch cursor {
		case "":
			return &platform.EarningsPage{
				Items:      []platform.RawEarning{earning("e1", "tip", 1000, 800, "fan_1")},
				NextCursor: "p2",
			}, nil
		case "p2":
			return &platform.EarningsPage{
				Items: []platform.RawEarning{earning("e2", "subscription_renewal", 2000, 1600, "fan_2")},
			}, nil
		default:
			return nil, errors.New("unexpected cursor")
		}
	}}

	e, passTime := newTestEngine(creators, txs, client)
	result := e.SyncCreator(context.Background(), 1)

	require.True(t, result.OK(), "unexpected error: %s", result.Error)
	assert.Equal(t, 2, result.Synced)
	assert.Equal(t, historicalFloor, client.lastSince)

	count, _ := txs.CountByCreator(1)
	assert.Equal(t, int64(2), count)

	creator, _ := creators.GetByID(1)
	require.NotNil(t, creator.LastSyncedAt)
	assert.Equal(t, passTime, *creator.LastSyncedAt)
	assert.Equal(t, 24.00, creator.TotalRevenue)
}

func TestSyncCreator_IncrementalWindowStart(t *testing.T) {
	watermark := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	creators := newFakeCreatorRepo(&models.Creator{ID: 1, TenantID: 7, ExternalID: "cr_1", Active: true, LastSyncedAt: &watermark})
	txs := newFakeTransactionRepo()
	client := &scriptedClient{earningsFn: func(extID, cursor string, call int) (*platform.EarningsPage, error) {
		return &platform.EarningsPage{}, nil
	}}

	e, _ := newTestEngine(creators, txs, client)
	result := e.SyncCreator(context.Background(), 1)

	require.True(t, result.OK())
	assert.Equal(t, watermark.Add(time.Second), client.lastSince)
}

func TestSyncCreator_Idempotent(t *testing.T) {
	creators := newFakeCreatorRepo(&models.Creator{ID: 1, TenantID: 7, ExternalID: "cr_1", Active: true})
	txs := newFakeTransactionRepo()
	client := &scriptedClient{earningsFn: func(extID, cursor string, call int) (*platform.EarningsPage, error) {
		return &platform.EarningsPage{
			Items: []platform.RawEarning{
				earning("e1", "tip", 1000, 800, "fan_1"),
				earning("e2", "ppv_unlock", 500, 400, "fan_2"),
			},
		}, nil
	}}

	e, _ := newTestEngine(creators, txs, client)

	first := e.SyncCreator(context.Background(), 1)
	require.True(t, first.OK())
	countAfterFirst, _ := txs.CountByCreator(1)
	rowAfterFirst, err := txs.GetByDedupeKey("up:e1")
	require.NoError(t, err)

	second := e.SyncCreator(context.Background(), 1)
	require.True(t, second.OK())
	countAfterSecond, _ := txs.CountByCreator(1)
	rowAfterSecond, err := txs.GetByDedupeKey("up:e1")
	require.NoError(t, err)

	assert.Equal(t, countAfterFirst, countAfterSecond, "re-running the same window must not duplicate rows")
	assert.Equal(t, rowAfterFirst.GrossAmount, rowAfterSecond.GrossAmount)
	assert.Equal(t, rowAfterFirst.NetAmount, rowAfterSecond.NetAmount)
	assert.Equal(t, rowAfterFirst.Type, rowAfterSecond.Type)
}

func TestSyncCreator_WatermarkOnlyAdvancesOnSuccess(t *testing.T) {
	creators := newFakeCreatorRepo(&models.Creator{ID: 1, TenantID: 7, ExternalID: "cr_1", Active: true})
	txs := newFakeTransactionRepo()

	failing := true
	client := &scriptedClient{earningsFn: func(extID, cursor string, call int) (*platform.EarningsPage, error) {
		if failing {
			return nil, &platform.APIError{StatusCode: 500, Body: "boom"}
		}
		return &platform.EarningsPage{Items: []platform.RawEarning{earning("e1", "tip", 100, 80, "fan_1")}}, nil
	}}

	e, passTime := newTestEngine(creators, txs, client)

	result := e.SyncCreator(context.Background(), 1)
	assert.False(t, result.OK())
	creator, _ := creators.GetByID(1)
	assert.Nil(t, creator.LastSyncedAt, "a failed pass must leave the watermark unchanged")

	failing = false
	result = e.SyncCreator(context.Background(), 1)
	require.True(t, result.OK())
	creator, _ = creators.GetByID(1)
	require.NotNil(t, creator.LastSyncedAt)
	assert.Equal(t, passTime, *creator.LastSyncedAt)
}

func TestSyncCreator_PartialFailureKeepsFetchedRecords(t *testing.T) {
	creators := newFakeCreatorRepo(&models.Creator{ID: 1, TenantID: 7, ExternalID: "cr_1", Active: true})
	txs := newFakeTransactionRepo()
	client := &scriptedClient{earningsFn: func(extID, cursor string, call int) (*platform.EarningsPage, error) {
		if cursor == "" {
			return &platform.EarningsPage{
				Items: []platform.RawEarning{
					earning("e1", "tip", 1000, 800, "fan_1"),
					earning("e2", "tip", 500, 400, "fan_2"),
				},
				NextCursor: "p2",
			}, nil
		}
		return nil, &platform.APIError{StatusCode: 503, Body: "upstream down"}
	}}

	e, _ := newTestEngine(creators, txs, client)
	result := e.SyncCreator(context.Background(), 1)

	assert.True(t, result.Partial)
	assert.Equal(t, 2, result.Synced)
	assert.Equal(t, ErrorClassTransient, result.ErrorClass)

	count, _ := txs.CountByCreator(1)
	assert.Equal(t, int64(2), count, "fetched records are stored even on a broken pass")

	creator, _ := creators.GetByID(1)
	assert.Nil(t, creator.LastSyncedAt)
}

func TestSyncCreator_AuthFailureReportsStoredCount(t *testing.T) {
	creators := newFakeCreatorRepo(&models.Creator{ID: 1, TenantID: 7, ExternalID: "cr_1", Active: true})
	txs := newFakeTransactionRepo()
	client := &scriptedClient{earningsFn: func(extID, cursor string, call int) (*platform.EarningsPage, error) {
		if cursor == "" {
			return &platform.EarningsPage{
				Items: []platform.RawEarning{
					earning("e1", "tip", 1000, 800, "fan_1"),
					earning("e2", "tip", 500, 400, "fan_2"),
				},
				NextCursor: "p2",
			}, nil
		}
		return nil, &platform.APIError{StatusCode: 403, Body: "revoked"}
	}}

	e, _ := newTestEngine(creators, txs, client)
	result := e.SyncCreator(context.Background(), 1)

	assert.Equal(t, ErrorClassAuth, result.ErrorClass)
	assert.True(t, result.Partial)
	assert.Equal(t, 2, result.Synced, "records stored before the auth failure are accounted for")

	count, _ := txs.CountByCreator(1)
	assert.Equal(t, int64(2), count)

	creator, _ := creators.GetByID(1)
	assert.Nil(t, creator.LastSyncedAt)
}

func TestSyncCreator_RateLimitClass(t *testing.T) {
	creators := newFakeCreatorRepo(&models.Creator{ID: 1, TenantID: 7, ExternalID: "cr_1", Active: true})
	client := &scriptedClient{earningsFn: func(extID, cursor string, call int) (*platform.EarningsPage, error) {
		return nil, &platform.APIError{StatusCode: 429, Body: "slow down"}
	}}

	e, _ := newTestEngine(creators, newFakeTransactionRepo(), client)
	result := e.SyncCreator(context.Background(), 1)

	assert.Equal(t, ErrorClassRateLimited, result.ErrorClass)
	assert.True(t, result.Partial)
}

func TestSyncCreator_PageCapBoundsRunawayCursor(t *testing.T) {
	creators := newFakeCreatorRepo(&models.Creator{ID: 1, TenantID: 7, ExternalID: "cr_1", Active: true})
	txs := newFakeTransactionRepo()
	client := &scriptedClient{earningsFn: func(extID, cursor string, call int) (*platform.EarningsPage, error) {
		// Upstream never runs out of pages.
		return &platform.EarningsPage{NextCursor: "again"}, nil
	}}

	e, _ := newTestEngine(creators, txs, client)
	result := e.SyncCreator(context.Background(), 1)

	assert.Equal(t, maxPagesPerSync, client.earningsCalls)
	assert.True(t, result.Partial)
	creator, _ := creators.GetByID(1)
	assert.Nil(t, creator.LastSyncedAt)
}

func TestSyncTenant_FanOutIsolation(t *testing.T) {
	creators := newFakeCreatorRepo(
		&models.Creator{ID: 1, TenantID: 7, ExternalID: "cr_a", Active: true},
		&models.Creator{ID: 2, TenantID: 7, ExternalID: "cr_b", Active: true},
		&models.Creator{ID: 3, TenantID: 7, ExternalID: "cr_c", Active: true},
	)
	txs := newFakeTransactionRepo()
	client := &scriptedClient{earningsFn: func(extID, cursor string, call int) (*platform.EarningsPage, error) {
		if extID == "cr_b" {
			return nil, &platform.APIError{StatusCode: 403, Body: "revoked"}
		}
		return &platform.EarningsPage{Items: []platform.RawEarning{earning("e-"+extID, "tip", 100, 80, "fan")}}, nil
	}}

	e, passTime := newTestEngine(creators, txs, client)
	results, err := e.SyncTenant(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, results, 3)

	byCreator := make(map[uint]SyncResult, len(results))
	for _, r := range results {
		byCreator[r.CreatorID] = r
	}

	assert.True(t, byCreator[1].OK())
	assert.True(t, byCreator[3].OK())
	assert.Equal(t, ErrorClassAuth, byCreator[2].ErrorClass)

	a, _ := creators.GetByID(1)
	b, _ := creators.GetByID(2)
	c, _ := creators.GetByID(3)
	require.NotNil(t, a.LastSyncedAt)
	require.NotNil(t, c.LastSyncedAt)
	assert.Equal(t, passTime, *a.LastSyncedAt)
	assert.Equal(t, passTime, *c.LastSyncedAt)
	assert.Nil(t, b.LastSyncedAt, "the failing creator's watermark must not advance")
}

func TestSyncTenant_SingleTokenFetch(t *testing.T) {
	creators := newFakeCreatorRepo(
		&models.Creator{ID: 1, TenantID: 7, ExternalID: "cr_a", Active: true},
		&models.Creator{ID: 2, TenantID: 7, ExternalID: "cr_b", Active: true},
	)
	client := &scriptedClient{earningsFn: func(extID, cursor string, call int) (*platform.EarningsPage, error) {
		return &platform.EarningsPage{}, nil
	}}

	repos := &repository.Repositories{Creator: creators, Transaction: newFakeTransactionRepo()}
	tokens := &fakeTokenSource{token: "tok"}
	e := NewEngine(repos, tokens, client)

	_, err := e.SyncTenant(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 1, tokens.calls, "one token fetch serves the whole fan-out")
}

func TestSyncTenant_TokenFailureSurfaces(t *testing.T) {
	creators := newFakeCreatorRepo(&models.Creator{ID: 1, TenantID: 7, ExternalID: "cr_a", Active: true})
	repos := &repository.Repositories{Creator: creators, Transaction: newFakeTransactionRepo()}
	tokens := &fakeTokenSource{err: tokenmanager.ErrNoConnection}
	e := NewEngine(repos, tokens, &scriptedClient{})

	_, err := e.SyncTenant(context.Background(), 7)
	assert.ErrorIs(t, err, tokenmanager.ErrNoConnection)
}

func TestSyncCreator_TokenErrorClass(t *testing.T) {
	creators := newFakeCreatorRepo(&models.Creator{ID: 1, TenantID: 7, ExternalID: "cr_a", Active: true})
	repos := &repository.Repositories{Creator: creators, Transaction: newFakeTransactionRepo()}
	e := NewEngine(repos, &fakeTokenSource{err: tokenmanager.ErrAuthExpired}, &scriptedClient{})

	result := e.SyncCreator(context.Background(), 1)
	assert.Equal(t, ErrorClassAuth, result.ErrorClass)
}

func TestImportCreators(t *testing.T) {
	creators := newFakeCreatorRepo()
	repos := &repository.Repositories{Creator: creators, Transaction: newFakeTransactionRepo()}
	client := &scriptedClient{creatorPages: []platform.CreatorPage{
		{Items: []platform.RemoteCreator{
			{ID: "cr_1", Username: "alice", DisplayName: "Alice", Active: true},
			{ID: "cr_2", Username: "bob", DisplayName: "Bob", Active: true},
		}, HasMore: true},
		{Items: []platform.RemoteCreator{
			{ID: "cr_3", Username: "carol", DisplayName: "Carol", Active: false},
		}},
	}}
	e := NewEngine(repos, &fakeTokenSource{token: "tok"}, client)

	imported, err := e.ImportCreators(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 3, imported)
	assert.Equal(t, 2, client.creatorCalls)

	count, _ := creators.Count()
	assert.Equal(t, int64(3), count)

	// Re-import updates rather than duplicates.
	_, err = e.ImportCreators(context.Background(), 7)
	require.NoError(t, err)
	count, _ = creators.Count()
	assert.Equal(t, int64(3), count)
}
