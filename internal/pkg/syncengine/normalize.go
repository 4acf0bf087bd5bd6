package syncengine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/behavero/agencyos-sub001/app/models"
	"github.com/behavero/agencyos-sub001/internal/pkg/platform"
)

// categoryRule maps keywords found in the upstream free-text source field to
// a transaction type. Rules are evaluated in order; the first match wins, so
// "ppv_unlock" classifies as ppv, not post.
type categoryRule struct {
	keywords []string
	txType   string
}

var categoryRules = []categoryRule{
	{keywords: []string{"subscription", "renewal"}, txType: models.TransactionTypeSubscription},
	{keywords: []string{"tip"}, txType: models.TransactionTypeTip},
	{keywords: []string{"ppv"}, txType: models.TransactionTypePPV},
	{keywords: []string{"message"}, txType: models.TransactionTypeMessage},
	{keywords: []string{"post", "unlock"}, txType: models.TransactionTypePost},
	{keywords: []string{"stream", "live"}, txType: models.TransactionTypeStream},
}

// classifySource maps the upstream source string to a transaction type.
func classifySource(source string) string {
	s := strings.ToLower(strings.TrimSpace(source))
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(s, kw) {
				return rule.txType
			}
		}
	}
	return models.TransactionTypeOther
}

// deriveDedupeKey builds the stable identifier that makes repeated upserts of
// the same upstream record idempotent. The upstream id is the natural key
// when present. Otherwise the key is derived from date, source, amount and
// counterparty; a random tiebreaker is appended only when no counterparty is
// reported, to avoid collapsing truly distinct same-amount records.
func deriveDedupeKey(e platform.RawEarning) string {
	if id := strings.TrimSpace(e.ID); id != "" {
		return "up:" + id
	}

	base := fmt.Sprintf("%s|%s|%d|%s",
		e.CreatedAt.UTC().Format(time.RFC3339),
		strings.ToLower(strings.TrimSpace(e.Source)),
		e.GrossCents,
		strings.TrimSpace(e.FanID),
	)
	if strings.TrimSpace(e.FanID) == "" {
		base += "|" + uuid.NewString()
	}

	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}

// centsToAmount converts upstream integer minor units to major units.
func centsToAmount(cents int64) float64 {
	return float64(cents) / 100
}

// normalizeEarning turns a raw upstream earning into a ledger row. The fee
// is derived from the gross/net delta in cents before conversion, so
// net = gross - fee holds by construction.
func normalizeEarning(tenantID, creatorID uint, e platform.RawEarning, syncedAt time.Time) models.Transaction {
	feeCents := e.GrossCents - e.NetCents
	if feeCents < 0 {
		feeCents = 0
	}

	currency := strings.ToUpper(strings.TrimSpace(e.Currency))
	if currency == "" {
		currency = "USD"
	}

	return models.Transaction{
		DedupeKey:      deriveDedupeKey(e),
		TenantID:       tenantID,
		CreatorID:      creatorID,
		Type:           classifySource(e.Source),
		GrossAmount:    centsToAmount(e.GrossCents),
		NetAmount:      centsToAmount(e.GrossCents - feeCents),
		PlatformFee:    centsToAmount(feeCents),
		Currency:       currency,
		CounterpartyID: strings.TrimSpace(e.FanID),
		OccurredAt:     e.CreatedAt.UTC(),
		SyncedAt:       syncedAt,
	}
}
