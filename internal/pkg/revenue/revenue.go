package revenue

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/behavero/agencyos-sub001/app/repository"
	"github.com/behavero/agencyos-sub001/internal/pkg/cache"
)

const (
	CacheKeyCreatorTotal = "revenue:creator:%d:total"
	CacheKeyTenantTotal  = "revenue:tenant:%d:total"
	CacheExpiration      = 30 * time.Minute

	// readPageSize is the repository page size used when assembling
	// summaries. Pages are read until exhausted; consumers always see the
	// complete transaction set for the period, never a truncated page.
	readPageSize = 500
)

// CreatorSummary aggregates a creator's ledger for display reads.
type CreatorSummary struct {
	CreatorID    uint               `json:"creator_id"`
	TotalRevenue float64            `json:"total_revenue"`
	Transactions int64              `json:"transactions"`
	ByType       map[string]float64 `json:"by_type"`
}

// TenantSummary aggregates a tenant's ledger over a period.
type TenantSummary struct {
	TenantID     uint               `json:"tenant_id"`
	From         time.Time          `json:"from"`
	To           time.Time          `json:"to"`
	GrossTotal   float64            `json:"gross_total"`
	NetTotal     float64            `json:"net_total"`
	Transactions int                `json:"transactions"`
	ByType       map[string]float64 `json:"by_type"`
}

// GetCreatorTotal returns a creator's running net revenue, served from the
// cache when fresh.
func GetCreatorTotal(repos *repository.Repositories, creatorID uint) (float64, error) {
	key := fmt.Sprintf(CacheKeyCreatorTotal, creatorID)
	if total, err := cache.GetFloat(key); err == nil {
		return total, nil
	}

	total, err := repos.Transaction.SumNetByCreator(creatorID)
	if err != nil {
		return 0, err
	}
	if err := cache.Set(key, total, CacheExpiration); err != nil {
		log.Errorf("[Revenue] failed to cache creator %d total: %v", creatorID, err)
	}
	return total, nil
}

// InvalidateCreator drops cached figures for a creator after a sync pass.
func InvalidateCreator(creatorID uint) {
	if err := cache.Delete(fmt.Sprintf(CacheKeyCreatorTotal, creatorID)); err != nil {
		log.Debugf("[Revenue] cache invalidation for creator %d failed: %v", creatorID, err)
	}
}

// BuildCreatorSummary assembles a creator's full-ledger summary since the
// given time, reading repository pages until the set is exhausted.
func BuildCreatorSummary(repos *repository.Repositories, creatorID uint, since time.Time) (*CreatorSummary, error) {
	summary := &CreatorSummary{
		CreatorID: creatorID,
		ByType:    make(map[string]float64),
	}

	for offset := 0; ; offset += readPageSize {
		page, err := repos.Transaction.ListByCreatorSince(creatorID, since, offset, readPageSize)
		if err != nil {
			return nil, err
		}
		for _, tx := range page {
			summary.TotalRevenue += tx.NetAmount
			summary.ByType[tx.Type] += tx.NetAmount
			summary.Transactions++
		}
		if len(page) < readPageSize {
			break
		}
	}

	return summary, nil
}

// BuildTenantSummary assembles a tenant's period summary, reading repository
// pages until the set is exhausted.
func BuildTenantSummary(repos *repository.Repositories, tenantID uint, from, to time.Time) (*TenantSummary, error) {
	summary := &TenantSummary{
		TenantID: tenantID,
		From:     from,
		To:       to,
		ByType:   make(map[string]float64),
	}

	for offset := 0; ; offset += readPageSize {
		page, err := repos.Transaction.ListByTenantBetween(tenantID, from, to, offset, readPageSize)
		if err != nil {
			return nil, err
		}
		for _, tx := range page {
			summary.GrossTotal += tx.GrossAmount
			summary.NetTotal += tx.NetAmount
			summary.ByType[tx.Type] += tx.NetAmount
			summary.Transactions++
		}
		if len(page) < readPageSize {
			break
		}
	}

	return summary, nil
}
