package testing

import (
	"fmt"
	"time"

	"github.com/fleetops/dispatch/internal/domain"
)

// NewDriverFixture returns a plausible active driver. The index keeps
// email uniqueness across multiple fixtures in one test.
func NewDriverFixture(i int) *domain.Driver {
	return &domain.Driver{
		Email:                  fmt.Sprintf("driver%d@example.com", i),
		PasswordHash:           "$2a$10$fixturefixturefixturefixturefixturefixturefixturefix",
		Name:                   fmt.Sprintf("Driver %d", i),
		Phone:                  fmt.Sprintf("+91-98%08d", i),
		VehicleType:            "bike",
		VehicleCapacityKg:      25,
		ExperienceDays:         180 + i*30,
		TotalDeliveries:        200,
		SuccessfulDeliveries:   190,
		FailedDeliveries:       10,
		SuccessRate:            0.95,
		AvgDeliveryTimeMinutes: 22,
		IsActive:               true,
	}
}

// NewPackageFixture returns a pending package with mid-range features
func NewPackageFixture(i int) *domain.Package {
	return &domain.Package{
		TrackingNumber:    fmt.Sprintf("TRK%06d", i),
		Status:            domain.PackagePending,
		DeliveryAddress:   fmt.Sprintf("%d Test Lane", i),
		Priority:          "normal",
		WeightKg:          2.5,
		FloorNumber:       2,
		DistanceFromHubKm: 5.0,
	}
}

// NewHealthEventFixture returns a neutral wearable reading
func NewHealthEventFixture(driverID int64) *domain.HealthEvent {
	return &domain.HealthEvent{
		DriverID:            driverID,
		RecordedAt:          time.Now().UTC(),
		HeartRate:           75,
		FatigueLevel:        3,
		HoursWorked:         4,
		HoursSinceLastBreak: 1.5,
		PackagesDelivered:   5,
		PackagesRemaining:   6,
		TotalDistanceKm:     18,
	}
}

// NewAssignmentFixture binds a package to a driver for the given
// operational date in the initial assigned state.
func NewAssignmentFixture(driverID, packageID int64, date string) *domain.Assignment {
	return &domain.Assignment{
		DriverID:            driverID,
		PackageID:           packageID,
		OperationalDate:     date,
		Status:              domain.AssignmentAssigned,
		PredictedDifficulty: 45,
		AssignedAt:          time.Now().UTC(),
	}
}
