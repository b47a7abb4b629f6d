// Package domain provides core domain models and types for the dispatch fleet.
package domain

import "time"

// PackageStatus represents the lifecycle state of a package
type PackageStatus string

const (
	PackagePending   PackageStatus = "pending"
	PackageAssigned  PackageStatus = "assigned"
	PackageInTransit PackageStatus = "in_transit"
	PackageDelivered PackageStatus = "delivered"
	PackageFailed    PackageStatus = "failed"
	PackageCancelled PackageStatus = "cancelled"
)

// IsTerminal reports whether the package can no longer change state
func (s PackageStatus) IsTerminal() bool {
	return s == PackageDelivered || s == PackageFailed || s == PackageCancelled
}

// AssignmentStatus represents the lifecycle state of a daily assignment
type AssignmentStatus string

const (
	AssignmentAssigned   AssignmentStatus = "assigned"
	AssignmentAccepted   AssignmentStatus = "accepted"
	AssignmentInProgress AssignmentStatus = "in_progress"
	AssignmentCompleted  AssignmentStatus = "completed"
	AssignmentFailed     AssignmentStatus = "failed"
)

// IsTerminal reports whether the assignment is immutable
func (s AssignmentStatus) IsTerminal() bool {
	return s == AssignmentCompleted || s == AssignmentFailed
}

// SwapStatus represents the lifecycle state of a swap request
type SwapStatus string

const (
	SwapPending   SwapStatus = "pending"
	SwapAccepted  SwapStatus = "accepted"
	SwapRejected  SwapStatus = "rejected"
	SwapCancelled SwapStatus = "cancelled"
	SwapCompleted SwapStatus = "completed"
)

// Severity classifies a health risk score into operational bands
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// BreakUrgency mirrors Severity for break recommendations
type BreakUrgency string

const (
	UrgencyLow      BreakUrgency = "low"
	UrgencyMedium   BreakUrgency = "medium"
	UrgencyHigh     BreakUrgency = "high"
	UrgencyCritical BreakUrgency = "critical"
)

// BreakTiming says when a recommended break should start
type BreakTiming string

const (
	BreakImmediately       BreakTiming = "immediately"
	BreakWithin30Minutes   BreakTiming = "within_30_minutes"
	BreakAfterNextDelivery BreakTiming = "after_next_delivery"
)

// Driver represents a fleet driver. Drivers are never hard-deleted;
// departures flip is_active off so historical assignments stay consistent.
type Driver struct {
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
	Email                  string    `json:"email"`
	Phone                  string    `json:"phone,omitempty"`
	PasswordHash           string    `json:"-"`
	Name                   string    `json:"name"`
	VehicleType            string    `json:"vehicle_type"`
	PushToken              *string   `json:"-"`
	CurrentLatitude        *float64  `json:"current_latitude,omitempty"`
	CurrentLongitude       *float64  `json:"current_longitude,omitempty"`
	ID                     int64     `json:"id"`
	VehicleCapacityKg      float64   `json:"vehicle_capacity_kg"`
	ExperienceDays         int       `json:"experience_days"`
	TotalDeliveries        int       `json:"total_deliveries"`
	SuccessfulDeliveries   int       `json:"successful_deliveries"`
	FailedDeliveries       int       `json:"failed_deliveries"`
	SuccessRate            float64   `json:"success_rate"`
	AvgDeliveryTimeMinutes float64   `json:"avg_delivery_time_minutes"`
	IsActive               bool      `json:"is_active"`
	IsAdmin                bool      `json:"is_admin"`
}

// Package represents a parcel to be delivered
type Package struct {
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	TrackingNumber    string        `json:"tracking_number"`
	Status            PackageStatus `json:"status"`
	DeliveryAddress   string        `json:"delivery_address"`
	Priority          string        `json:"priority"`
	DeliveryLatitude  *float64      `json:"delivery_latitude,omitempty"`
	DeliveryLongitude *float64      `json:"delivery_longitude,omitempty"`
	TimeWindowHours   *float64      `json:"time_window_hours,omitempty"`
	ID                int64         `json:"id"`
	WeightKg          float64       `json:"weight_kg"`
	FloorNumber       int           `json:"floor_number"`
	DistanceFromHubKm float64       `json:"distance_from_hub_km"`
	IsFragile         bool          `json:"is_fragile"`
}

// Assignment binds a package to a driver for one operational date.
// The (package_id, operational_date) pair is unique; completed and failed
// assignments are immutable.
type Assignment struct {
	AssignedAt          time.Time        `json:"assigned_at"`
	AcceptedAt          *time.Time       `json:"accepted_at,omitempty"`
	StartedAt           *time.Time       `json:"started_at,omitempty"`
	CompletedAt         *time.Time       `json:"completed_at,omitempty"`
	OperationalDate     string           `json:"operational_date"`
	Status              AssignmentStatus `json:"status"`
	Explanation         *string          `json:"explanation,omitempty"`
	ActualDifficulty    *float64         `json:"actual_difficulty,omitempty"`
	ID                  int64            `json:"id"`
	DriverID            int64            `json:"driver_id"`
	PackageID           int64            `json:"package_id"`
	PredictedDifficulty float64          `json:"predicted_difficulty"`
}

// Delivery records the terminal outcome of an assignment. Creating one
// transitions the assignment and package to terminal states and updates the
// driver's aggregates in the same transaction.
type Delivery struct {
	DeliveredAt           time.Time `json:"delivered_at"`
	FailureReason         *string   `json:"failure_reason,omitempty"`
	ActualDurationMinutes *float64  `json:"actual_duration_minutes,omitempty"`
	ID                    int64     `json:"id"`
	AssignmentID          int64     `json:"assignment_id"`
	DriverID              int64     `json:"driver_id"`
	PackageID             int64     `json:"package_id"`
	Success               bool      `json:"success"`
}

// HealthEvent is one wearable reading for a driver, append-only.
// The latest event per driver wins for monitoring purposes.
type HealthEvent struct {
	RecordedAt           time.Time    `json:"recorded_at"`
	AlertSentAt          *time.Time   `json:"alert_sent_at,omitempty"`
	Severity             Severity     `json:"severity,omitempty"`
	BreakUrgency         BreakUrgency `json:"break_urgency,omitempty"`
	BreakReason          string       `json:"break_reason,omitempty"`
	PredictedRiskScore   *float64     `json:"predicted_risk_score,omitempty"`
	ID                   int64        `json:"id"`
	DriverID             int64        `json:"driver_id"`
	HeartRate            float64      `json:"heart_rate"`
	FatigueLevel         float64      `json:"fatigue_level"`
	HoursWorked          float64      `json:"hours_worked"`
	HoursSinceLastBreak  float64      `json:"hours_since_last_break"`
	PackagesDelivered    int          `json:"packages_delivered"`
	PackagesRemaining    int          `json:"packages_remaining"`
	TotalDistanceKm      float64      `json:"total_distance_km"`
	BreakDurationMinutes int          `json:"break_duration_minutes"`
	BreakRecommended     bool         `json:"break_recommended"`
}

// SwapRequest is an offer from one driver to exchange assignments with another
type SwapRequest struct {
	ProposedAt            time.Time  `json:"proposed_at"`
	RespondedAt           *time.Time `json:"responded_at,omitempty"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	ID                    string     `json:"id"`
	Status                SwapStatus `json:"status"`
	Reason                string     `json:"reason,omitempty"`
	ProposerID            int64      `json:"proposer_id"`
	AcceptorID            int64      `json:"acceptor_id"`
	OfferedAssignmentID   int64      `json:"offered_assignment_id"`
	RequestedAssignmentID int64      `json:"requested_assignment_id"`
	CompatibilityScore    float64    `json:"compatibility_score"`
	DistanceSavedKm       float64    `json:"distance_saved_km"`
}

// InsurancePayout is one immutable compensation record for a driver whose
// failure rate was a statistical outlier over a review period.
type InsurancePayout struct {
	CreatedAt         time.Time `json:"created_at"`
	PeriodStart       string    `json:"period_start"`
	PeriodEnd         string    `json:"period_end"`
	Reason            string    `json:"reason"`
	ID                int64     `json:"id"`
	DriverID          int64     `json:"driver_id"`
	TotalTasks        int       `json:"total_tasks"`
	FailedTasks       int       `json:"failed_tasks"`
	DriverFailureRate float64   `json:"driver_failure_rate"`
	PopulationMean    float64   `json:"population_mean"`
	PopulationStd     float64   `json:"population_std"`
	ZScore            float64   `json:"z_score"`
	ExcessFailures    float64   `json:"excess_failures"`
	PayoutAmount      float64   `json:"payout_amount"`
	Eligible          bool      `json:"eligible"`
	Approved          bool      `json:"approved"`
	Paid              bool      `json:"paid"`
}

// GPSLog is one location breadcrumb reported over the realtime socket
type GPSLog struct {
	RecordedAt time.Time `json:"recorded_at"`
	ID         int64     `json:"id"`
	DriverID   int64     `json:"driver_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	SpeedKmh   *float64  `json:"speed_kmh,omitempty"`
}

// BreakRecommendation is the advisor output attached to a health evaluation
type BreakRecommendation struct {
	Timing          BreakTiming  `json:"timing"`
	Urgency         BreakUrgency `json:"urgency"`
	Reason          string       `json:"reason"`
	DurationMinutes int          `json:"duration_minutes"`
	Recommended     bool         `json:"recommended"`
}

// OperationalDate formats t in the canonical YYYY-MM-DD form used by
// assignments and swap validation.
func OperationalDate(t time.Time) string {
	return t.Format("2006-01-02")
}
