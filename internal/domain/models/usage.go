package models

import "time"

// AlertType classifies entries in a tenant's usage alert log.
type AlertType string

const (
	AlertTypeThreshold    AlertType = "threshold"
	AlertTypeLimitReached AlertType = "limit_reached"
	AlertTypeFallback     AlertType = "fallback"
	AlertTypeError        AlertType = "error"
)

// Usage defaults for a freshly created tenant record.
const (
	DefaultMonthlyTokenLimit int64   = 1_000_000
	DefaultAlertThreshold    float64 = 0.8
)

// MicrosPerUnit converts currency units to the fixed-point micros stored in counters.
const MicrosPerUnit = 1_000_000

// UsageRecord is the per-tenant singleton usage ledger document.
type UsageRecord struct {
	OrganizationID string        `json:"organizationId" bson:"_id"`
	Settings       UsageSettings `json:"settings" bson:"settings"`
	Usage          UsageCounters `json:"usage" bson:"usage"`
	Alerts         []UsageAlert  `json:"alerts" bson:"alerts"`
	CreatedAt      time.Time     `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt" bson:"updatedAt"`
}

// UsageSettings holds tenant-level provider preferences and limits.
type UsageSettings struct {
	CustomProviderSettings bool          `json:"customProviderSettings" bson:"customProviderSettings"`
	PreferredProviderID    string        `json:"preferredProviderId,omitempty" bson:"preferredProviderId,omitempty"`
	CustomModels           []CustomModel `json:"customModels,omitempty" bson:"customModels,omitempty"`
	UsageLimits            UsageLimits   `json:"usageLimits" bson:"usageLimits"`
}

// CustomModel overrides the default model for one provider.
type CustomModel struct {
	ProviderID string `json:"providerId" bson:"providerId"`
	ModelID    string `json:"modelId" bson:"modelId"`
}

// UsageLimits is the tenant's monthly cap configuration.
type UsageLimits struct {
	HasLimit          bool    `json:"hasLimit" bson:"hasLimit"`
	MonthlyTokenLimit int64   `json:"monthlyTokenLimit" bson:"monthlyTokenLimit"`
	AlertThreshold    float64 `json:"alertThreshold" bson:"alertThreshold"`
}

// UsageCounters groups the open month and the archived months.
type UsageCounters struct {
	CurrentMonth MonthUsage     `json:"currentMonth" bson:"currentMonth"`
	History      []MonthHistory `json:"history" bson:"history"`
}

// MonthUsage is the running total for the calendar month of LastUpdated.
type MonthUsage struct {
	Tokens      int64     `json:"tokens" bson:"tokens"`
	Requests    int64     `json:"requests" bson:"requests"`
	CostMicros  int64     `json:"costMicros" bson:"costMicros"`
	LastUpdated time.Time `json:"lastUpdated" bson:"lastUpdated"`
}

// Cost returns the accumulated cost in currency units.
func (m MonthUsage) Cost() float64 {
	return float64(m.CostMicros) / MicrosPerUnit
}

// MonthHistory is an archived month of usage.
type MonthHistory struct {
	Year       int   `json:"year" bson:"year"`
	Month      int   `json:"month" bson:"month"`
	Tokens     int64 `json:"tokens" bson:"tokens"`
	Requests   int64 `json:"requests" bson:"requests"`
	CostMicros int64 `json:"costMicros" bson:"costMicros"`
}

// UsageAlert is an append-only entry in the tenant alert log.
type UsageAlert struct {
	ID             string     `json:"id" bson:"id"`
	Type           AlertType  `json:"type" bson:"type"`
	Message        string     `json:"message" bson:"message"`
	Timestamp      time.Time  `json:"timestamp" bson:"timestamp"`
	Acknowledged   bool       `json:"acknowledged" bson:"acknowledged"`
	AcknowledgedBy string     `json:"acknowledgedBy,omitempty" bson:"acknowledgedBy,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty" bson:"acknowledgedAt,omitempty"`
}

// NewUsageRecord creates a record with default limits for a tenant.
func NewUsageRecord(organizationID string, now time.Time) *UsageRecord {
	return &UsageRecord{
		OrganizationID: organizationID,
		Settings: UsageSettings{
			UsageLimits: UsageLimits{
				HasLimit:          true,
				MonthlyTokenLimit: DefaultMonthlyTokenLimit,
				AlertThreshold:    DefaultAlertThreshold,
			},
		},
		Usage: UsageCounters{
			CurrentMonth: MonthUsage{LastUpdated: now},
			History:      []MonthHistory{},
		},
		Alerts:    []UsageAlert{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// LimitReached reports whether a configured cap is already met.
func (r *UsageRecord) LimitReached() bool {
	limits := r.Settings.UsageLimits
	return limits.HasLimit && limits.MonthlyTokenLimit > 0 &&
		r.Usage.CurrentMonth.Tokens >= limits.MonthlyTokenLimit
}

// CustomModelFor returns the tenant's model override for a provider, if any.
func (r *UsageRecord) CustomModelFor(providerID string) string {
	for _, cm := range r.Settings.CustomModels {
		if cm.ProviderID == providerID {
			return cm.ModelID
		}
	}
	return ""
}

// FindAlert returns a pointer to the alert with the given id, or nil.
func (r *UsageRecord) FindAlert(alertID string) *UsageAlert {
	for i := range r.Alerts {
		if r.Alerts[i].ID == alertID {
			return &r.Alerts[i]
		}
	}
	return nil
}
