package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCustomerEffectiveServiceMin(t *testing.T) {
	cases := []struct {
		name       string
		visit      int
		difficulty int
		want       int
	}{
		{"difficulty 1 adds nothing", 20, 1, 20},
		{"difficulty 0 treated as no penalty", 20, 0, 20},
		{"difficulty 3 adds 10", 20, 3, 30},
		{"difficulty 5 adds 20", 15, 5, 35},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Customer{VisitDurationMin: tc.visit, Difficulty: tc.difficulty}
			assert.Equal(t, tc.want, c.EffectiveServiceMin())
		})
	}
}

func TestCustomerServesOn(t *testing.T) {
	single := Customer{DaysPerWeek: 1, PrimaryDay: Monday}
	assert.True(t, single.ServesOn(Monday))
	assert.False(t, single.ServesOn(Tuesday))

	multi := Customer{DaysPerWeek: 3, SchedulePattern: "Mo/We/Fr"}
	assert.True(t, multi.ServesOn(Monday))
	assert.True(t, multi.ServesOn(Wednesday))
	assert.True(t, multi.ServesOn(Friday))
	assert.False(t, multi.ServesOn(Tuesday))
	assert.False(t, multi.ServesOn(Sunday))
}

func TestTempAssignmentExpired(t *testing.T) {
	today := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	fresh := TempAssignment{AssignmentDate: today.AddDate(0, 0, -6)}
	assert.False(t, fresh.Expired(today), "exactly 6 days back is still valid")

	stale := TempAssignment{AssignmentDate: today.AddDate(0, 0, -7)}
	assert.True(t, stale.Expired(today))
}

func TestEffectiveAssignment(t *testing.T) {
	today := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	permanent := "tech-permanent"
	customer := Customer{AssignedTechID: &permanent}

	t.Run("no temp falls back to permanent", func(t *testing.T) {
		got := EffectiveAssignment(customer, nil, today)
		if assert.NotNil(t, got) {
			assert.Equal(t, permanent, *got)
		}
	})

	t.Run("non-expired temp overrides permanent", func(t *testing.T) {
		temp := &TempAssignment{TechID: "tech-temp", AssignmentDate: today}
		got := EffectiveAssignment(customer, temp, today)
		if assert.NotNil(t, got) {
			assert.Equal(t, "tech-temp", *got)
		}
	})

	t.Run("expired temp ignored", func(t *testing.T) {
		temp := &TempAssignment{TechID: "tech-temp", AssignmentDate: today.AddDate(0, 0, -7)}
		got := EffectiveAssignment(customer, temp, today)
		if assert.NotNil(t, got) {
			assert.Equal(t, permanent, *got)
		}
	})
}

func TestTechCapacity(t *testing.T) {
	tech := Tech{MaxStopsPerDay: 10, EfficiencyMultiplier: 1.5}
	assert.Equal(t, 15, tech.Capacity())

	zero := Tech{MaxStopsPerDay: 1, EfficiencyMultiplier: 0.1}
	assert.Equal(t, 1, zero.Capacity(), "capacity never drops below 1")
}

func TestDaySet(t *testing.T) {
	assert.Equal(t, Weekdays, DaySet(false, false))
	assert.Contains(t, DaySet(true, false), Saturday)
	assert.Contains(t, DaySet(true, true), Sunday)
}
