package tokenmanager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/behavero/agencyos-sub001/app/models"
	"github.com/behavero/agencyos-sub001/app/repository"
	"github.com/behavero/agencyos-sub001/internal/pkg/platform"
)

const (
	// DefaultCacheTTL bounds how long a token is served from process memory
	// without consulting storage.
	DefaultCacheTTL = 60 * time.Second

	// refreshMargin is how far before natural expiry a refresh is attempted.
	// The upstream token lifetime is short (~1h); a zero-margin check lets
	// tokens expire mid-request.
	refreshMargin = 5 * time.Minute

	// lockStaleness is the refresh-lease timeout. A lock older than this is
	// presumed to belong to a crashed holder and is ignorable.
	lockStaleness = 30 * time.Second

	// contentionWait is how long a caller sleeps before re-reading the
	// credential when another invocation holds a live refresh lock.
	contentionWait = 3 * time.Second

	maxRefreshAttempts = 3
)

// refreshBackoff is the delay before each refresh attempt.
var refreshBackoff = [maxRefreshAttempts]time.Duration{0, 2 * time.Second, 5 * time.Second}

var (
	// ErrNoConnection means no usable credential is on file for the tenant;
	// the tenant has to reconnect manually.
	ErrNoConnection = errors.New("no platform connection on file")

	// ErrAuthExpired means the refresh token was rejected by the upstream;
	// the tenant has to reconnect manually.
	ErrAuthExpired = errors.New("platform refresh token is no longer valid")
)

// RefreshError reports a refresh that could not complete for transient
// reasons. The credential state is left untouched; a later attempt may
// succeed.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// TokenClient is the slice of the upstream client the manager needs.
type TokenClient interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (*platform.TokenResponse, error)
}

// Manager hands out currently-valid access tokens for tenants, refreshing
// proactively and safely under concurrent invocations. The refresh mutex is
// the credential row's lock timestamp, because in-process primitives do not
// span invocations.
type Manager struct {
	repo   repository.CredentialRepository
	client TokenClient
	cache  *TokenCache

	// now and sleep are injectable for tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// NewManager creates a token manager with an explicit token cache.
func NewManager(repo repository.CredentialRepository, client TokenClient, cache *TokenCache) *Manager {
	if cache == nil {
		cache = NewTokenCache(DefaultCacheTTL)
	}
	return &Manager{
		repo:   repo,
		client: client,
		cache:  cache,
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// GetToken returns a currently-valid access token for the tenant.
func (m *Manager) GetToken(ctx context.Context, tenantID uint) (string, error) {
	if token, ok := m.cache.Get(tenantID); ok {
		return token, nil
	}

	cred, err := m.repo.GetByTenantID(tenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNoConnection
		}
		return "", fmt.Errorf("load credential: %w", err)
	}

	switch cred.Status {
	case models.CredentialStatusRevoked:
		return "", ErrNoConnection
	case models.CredentialStatusExpired:
		// A refresh token still on file has not been proven revoked; one
		// recovery refresh auto-heals transient-looking expirations.
		if cred.RefreshToken == "" {
			return "", ErrNoConnection
		}
		return m.refreshWithLock(ctx, cred)
	}

	now := m.now()
	if cred.ExpiresAt != nil && cred.ExpiresAt.After(now.Add(refreshMargin)) {
		m.cache.Put(tenantID, cred.AccessToken)
		return cred.AccessToken, nil
	}

	// Expiry is near. If another invocation holds a live lock, wait for its
	// result instead of refreshing twice.
	if cred.LockAcquiredAt != nil && now.Sub(*cred.LockAcquiredAt) < lockStaleness {
		return m.waitForHolder(tenantID)
	}

	return m.refreshWithLock(ctx, cred)
}

// Disconnect revokes the stored credential (terminal) and drops the cache.
func (m *Manager) Disconnect(tenantID uint) error {
	m.cache.Invalidate(tenantID)
	return m.repo.MarkRevoked(tenantID)
}

// waitForHolder sleeps through the contention window, then returns whatever
// token the lock holder left behind.
func (m *Manager) waitForHolder(tenantID uint) (string, error) {
	m.sleep(contentionWait)

	cred, err := m.repo.GetByTenantID(tenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNoConnection
		}
		return "", fmt.Errorf("re-read credential: %w", err)
	}

	switch cred.Status {
	case models.CredentialStatusRevoked:
		return "", ErrNoConnection
	case models.CredentialStatusExpired:
		return "", ErrAuthExpired
	}
	if cred.AccessToken == "" {
		return "", &RefreshError{Err: errors.New("concurrent refresh left no token")}
	}

	if cred.ExpiresAt != nil && cred.ExpiresAt.After(m.now().Add(refreshMargin)) {
		m.cache.Put(tenantID, cred.AccessToken)
	}
	return cred.AccessToken, nil
}

// refreshWithLock acquires the refresh lease and runs the refresh procedure.
// Auth failures are permanent: stop immediately, mark the credential
// expired. Transient failures exhaust the backoff schedule and leave the
// credential untouched apart from the released lock.
func (m *Manager) refreshWithLock(ctx context.Context, cred *models.PlatformCredential) (string, error) {
	now := m.now()
	acquired, err := m.repo.AcquireRefreshLock(cred.TenantID, now, now.Add(-lockStaleness))
	if err != nil {
		return "", fmt.Errorf("acquire refresh lock: %w", err)
	}
	if !acquired {
		// Lost the race; another invocation is refreshing right now.
		return m.waitForHolder(cred.TenantID)
	}

	var lastErr error
	for attempt := 0; attempt < maxRefreshAttempts; attempt++ {
		if d := refreshBackoff[attempt]; d > 0 {
			m.sleep(d)
		}

		resp, err := m.client.RefreshAccessToken(ctx, cred.RefreshToken)
		if err == nil {
			return m.persistRefresh(cred.TenantID, cred.RefreshToken, resp)
		}

		if platform.IsAuthError(err) {
			log.Errorf("[TokenManager] tenant %d: refresh token rejected: %v", cred.TenantID, err)
			if markErr := m.repo.MarkExpired(cred.TenantID); markErr != nil {
				log.Errorf("[TokenManager] tenant %d: failed to mark credential expired: %v", cred.TenantID, markErr)
			}
			m.cache.Invalidate(cred.TenantID)
			return "", ErrAuthExpired
		}

		if platform.IsRateLimitError(err) {
			// The upstream is shedding load; hammering it with the backoff
			// schedule makes that worse. Give up this refresh attempt entirely.
			lastErr = err
			log.Debugf("[TokenManager] tenant %d: refresh rate limited, not retrying: %v", cred.TenantID, err)
			break
		}

		lastErr = err
		log.Debugf("[TokenManager] tenant %d: refresh attempt %d/%d failed: %v", cred.TenantID, attempt+1, maxRefreshAttempts, err)
	}

	// Transient exhaustion: the credential may still be valid until natural
	// expiry, so only the lock is cleared.
	if err := m.repo.ReleaseLock(cred.TenantID); err != nil {
		log.Errorf("[TokenManager] tenant %d: failed to release refresh lock: %v", cred.TenantID, err)
	}

	if cred.IsUsable(m.now()) {
		// Partial availability beats hard failure while the old token lives.
		return cred.AccessToken, nil
	}
	return "", &RefreshError{Err: lastErr}
}

func (m *Manager) persistRefresh(tenantID uint, oldRefreshToken string, resp *platform.TokenResponse) (string, error) {
	refreshToken := resp.RefreshToken
	if refreshToken == "" {
		// Some grants omit the rotated refresh token; keep the current one.
		refreshToken = oldRefreshToken
	}
	expiresAt := m.now().Add(time.Duration(resp.ExpiresIn) * time.Second)

	if err := m.repo.SaveRefreshedToken(tenantID, resp.AccessToken, refreshToken, expiresAt); err != nil {
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}

	m.cache.Put(tenantID, resp.AccessToken)
	log.Infof("[TokenManager] tenant %d: access token refreshed, valid until %s", tenantID, expiresAt.Format(time.RFC3339))
	return resp.AccessToken, nil
}
