package billing

import "log"

// PlanTag is the semantic plan family a provider product or price
// identifier resolves to.
type PlanTag string

const (
	PlanEnterprise              PlanTag = "ENTERPRISE"
	PlanBusiness                PlanTag = "BUSINESS"
	PlanBusinessV1              PlanTag = "BUSINESS_V1"
	PlanSmallTeam               PlanTag = "SMALLTEAM"
	PlanDepartmentAddon         PlanTag = "DEPARTMENT_ADDON"
	PlanSharedCalendarSyncAddon PlanTag = "SHARED_CALENDAR_SYNC_ADDON"
	PlanManagerAddon            PlanTag = "MANAGER_ADDON"

	// PlanUnknown is the sentinel returned for identifiers missing from
	// the static tables. Callers treat it as a graceful no-op signal.
	PlanUnknown PlanTag = "Unknown plan ID"
)

// Sandbox tables cover development and preview deployments.
var sandboxPlanIDs = map[string]PlanTag{
	// Legacy numeric product identifiers.
	"563210": PlanEnterprise,
	"563211": PlanBusiness,
	"563212": PlanBusinessV1,
	"563213": PlanSmallTeam,
	"563214": PlanDepartmentAddon,
	"563215": PlanSharedCalendarSyncAddon,
	"563216": PlanManagerAddon,
	// Modern product identifiers.
	"pro_01hsb2c9qdx4e8f2k3m1n0p7r2": PlanEnterprise,
	"pro_01hsb2cf3t9w7y5v4u2s1q8e6d": PlanBusiness,
	"pro_01hsb2cktm6n4b8x7z5c3v1a9f": PlanSmallTeam,
	"pro_01hsb2cq2h8j6g4d2s9a7p5w3e": PlanDepartmentAddon,
	"pro_01hsb2cvde3f1h9k7m5r3t1y8u": PlanSharedCalendarSyncAddon,
	"pro_01hsb2d0rs5q3w1e9y7u5i3o2p": PlanManagerAddon,
	// Modern price identifiers.
	"pri_01hsb2d5ab2c4e6g8j1l3n5q7s": PlanEnterprise,
	"pri_01hsb2d9cd4e6g8j2l4n6q8s1u": PlanBusiness,
	"pri_01hsb2ddef6g8j1l3n5q7s9u2w": PlanSmallTeam,
	"pri_01hsb2dhgh8j2l4n6q8s1u3w5y": PlanDepartmentAddon,
	"pri_01hsb2dmij1l3n5q7s9u2w4y6a": PlanSharedCalendarSyncAddon,
	"pri_01hsb2dqkl3n5q7s1u3w5y7a9c": PlanManagerAddon,
}

var productionPlanIDs = map[string]PlanTag{
	"712301": PlanEnterprise,
	"712302": PlanBusiness,
	"712303": PlanBusinessV1,
	"712304": PlanSmallTeam,
	"712305": PlanDepartmentAddon,
	"712306": PlanSharedCalendarSyncAddon,
	"712307": PlanManagerAddon,
	"pro_01hv8x2a1b3c5d7e9f2g4h6j8k": PlanEnterprise,
	"pro_01hv8x2e5f7g9h1j3k5m7n9p2q": PlanBusiness,
	"pro_01hv8x2j9k1m3n5p7q9r2s4t6u": PlanSmallTeam,
	"pro_01hv8x2n3p5q7r9s1t3u5v7w9x": PlanDepartmentAddon,
	"pro_01hv8x2s7t9u1v3w5x7y9z2a4b": PlanSharedCalendarSyncAddon,
	"pro_01hv8x2x1y3z5a7b9c2d4e6f8g": PlanManagerAddon,
	"pri_01hv8x325c7d9e1f3g5h7j9k2m": PlanEnterprise,
	"pri_01hv8x369g1h3j5k7m9n2p4q6r": PlanBusiness,
	"pri_01hv8x3a3k5m7n9p1q3r5s7t9u": PlanSmallTeam,
	"pri_01hv8x3e7p9q1r3s5t7u9v2w4x": PlanDepartmentAddon,
	"pri_01hv8x3j1t3u5v7w9x2y4z6a8b": PlanSharedCalendarSyncAddon,
	"pri_01hv8x3n5x7y9z1a3b5c7d9e2f": PlanManagerAddon,
}

// Price identifiers of the grandfathered addon tiers. A modern event
// containing any of these marks the owning workspace as legacy-pricing.
var sandboxAddonTierPrices = map[string]bool{
	"pri_01hsb2dhgh8j2l4n6q8s1u3w5y": true,
	"pri_01hsb2dmij1l3n5q7s9u2w4y6a": true,
	"pri_01hsb2dqkl3n5q7s1u3w5y7a9c": true,
}

var productionAddonTierPrices = map[string]bool{
	"pri_01hv8x3e7p9q1r3s5t7u9v2w4x": true,
	"pri_01hv8x3j1t3u5v7w9x2y4z6a8b": true,
	"pri_01hv8x3n5x7y9z1a3b5c7d9e2f": true,
}

// PlanMapper resolves opaque provider product and price identifiers to
// semantic plan tags. The table is fixed at construction time.
type PlanMapper struct {
	table      map[string]PlanTag
	addonTiers map[string]bool
}

// NewPlanMapper creates a mapper for the given deployment target.
func NewPlanMapper(production bool) *PlanMapper {
	if production {
		return &PlanMapper{table: productionPlanIDs, addonTiers: productionAddonTierPrices}
	}
	return &PlanMapper{table: sandboxPlanIDs, addonTiers: sandboxAddonTierPrices}
}

// ResolvePlanTag maps a provider product or price identifier to its plan
// tag. Unknown identifiers return PlanUnknown and are logged; they never
// abort processing.
func (m *PlanMapper) ResolvePlanTag(productOrPriceID string) PlanTag {
	if tag, ok := m.table[productOrPriceID]; ok {
		return tag
	}
	log.Printf("plan mapper: unmapped provider identifier %q", productOrPriceID)
	return PlanUnknown
}

// IsLegacyAddonTierPrice reports whether the price identifier belongs to
// a grandfathered addon tier.
func (m *PlanMapper) IsLegacyAddonTierPrice(priceID string) bool {
	return m.addonTiers[priceID]
}

// PrimaryPlanTags lists the tags that represent a workspace's primary
// plan, as opposed to addons.
func PrimaryPlanTags() []string {
	return []string{
		string(PlanEnterprise),
		string(PlanBusiness),
		string(PlanBusinessV1),
		string(PlanSmallTeam),
	}
}
