package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPackageStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   PackageStatus
		terminal bool
	}{
		{PackagePending, false},
		{PackageAssigned, false},
		{PackageInTransit, false},
		{PackageDelivered, true},
		{PackageFailed, true},
		{PackageCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestAssignmentStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   AssignmentStatus
		terminal bool
	}{
		{AssignmentAssigned, false},
		{AssignmentAccepted, false},
		{AssignmentInProgress, false},
		{AssignmentCompleted, true},
		{AssignmentFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestOperationalDate(t *testing.T) {
	ts := time.Date(2025, 6, 3, 14, 30, 0, 0, time.UTC)
	assert.Equal(t, "2025-06-03", OperationalDate(ts))
}

func TestErrorKinds_MatchWithErrorsIs(t *testing.T) {
	err := Validationf("swap limit reached (%d per day)", 2)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "swap limit reached (2 per day)")

	err = NotFoundf("driver %d", 42)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrValidation))

	err = Conflictf("assignment %d changed", 7)
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestErrorKinds_SurviveWrapping(t *testing.T) {
	inner := Validationf("bad time window")
	outer := fmt.Errorf("propose swap: %w", inner)
	assert.True(t, errors.Is(outer, ErrValidation))
}
