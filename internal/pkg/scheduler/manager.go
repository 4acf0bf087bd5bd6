package scheduler

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/behavero/agencyos-sub001/app/repository"
	"github.com/behavero/agencyos-sub001/internal/pkg/env"
	"github.com/behavero/agencyos-sub001/internal/pkg/syncengine"
)

const defaultSyncIntervalMinutes = 30

// Manager runs periodic background sync sweeps over all tenants that hold an
// active platform credential.
type Manager struct {
	engine      *syncengine.Engine
	credentials repository.CredentialRepository

	syncTicker *time.Ticker
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// SetupManager initializes the global scheduler manager (singleton).
func SetupManager(engine *syncengine.Engine, credentials repository.CredentialRepository) *Manager {
	managerOnce.Do(func() {
		globalManager = &Manager{
			engine:      engine,
			credentials: credentials,
			stopCh:      make(chan struct{}),
		}
	})
	return globalManager
}

// GetManager returns the global scheduler manager
func GetManager() *Manager {
	return globalManager
}

// Start starts the periodic sync sweep
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so the manager can be
	// restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true

	interval := defaultSyncIntervalMinutes
	if v, err := strconv.Atoi(env.GetEnv("SYNC_INTERVAL_MINUTES", "")); err == nil && v > 0 {
		interval = v
	}

	m.syncTicker = time.NewTicker(time.Duration(interval) * time.Minute)
	m.wg.Add(1)
	go m.syncWorker()

	log.Infof("[Scheduler] Started sync sweep worker (interval: %d minutes)", interval)
}

// Stop stops the periodic sync sweep
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	if m.syncTicker != nil {
		m.syncTicker.Stop()
	}

	close(m.stopCh)
	m.running = false

	m.wg.Wait()
	log.Info("[Scheduler] Stopped")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// RunSyncSweepOnce exposes a manual trigger for a single sweep (admin use).
func (m *Manager) RunSyncSweepOnce() {
	m.runSyncSweep()
}

func (m *Manager) syncWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[Scheduler] Sync worker stopping")
			return
		case <-m.syncTicker.C:
			m.runSyncSweep()
		}
	}
}

// runSyncSweep syncs every tenant that currently holds an active credential.
// Tenants are handled sequentially; fan-out happens per tenant inside the
// engine.
func (m *Manager) runSyncSweep() {
	tenantIDs, err := m.credentials.ListTenantIDsWithActiveCredential()
	if err != nil {
		log.Errorf("[Scheduler] Failed to list syncable tenants: %v", err)
		return
	}

	for _, tenantID := range tenantIDs {
		results, err := m.engine.SyncTenant(context.Background(), tenantID)
		if err != nil {
			log.Errorf("[Scheduler] Tenant %d sweep failed: %v", tenantID, err)
			continue
		}

		synced, failed := 0, 0
		for _, r := range results {
			synced += r.Synced
			if !r.OK() {
				failed++
			}
		}
		log.Infof("[Scheduler] Tenant %d: %d records synced, %d/%d creator passes incomplete", tenantID, synced, failed, len(results))
	}
}
