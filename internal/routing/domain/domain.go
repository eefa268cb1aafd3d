// Package domain describes the Routing Core entities: tenants, techs,
// customers, temporary reassignments, and saved routes. The package
// contains no SQL and knows nothing of the transport layer — just plain
// types and the rules derived from them (serves_on, effective assignment,
// visit duration).
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Day is a day of the week in the spec's format (lowercase English names).
type Day string

const (
	Monday    Day = "monday"
	Tuesday   Day = "tuesday"
	Wednesday Day = "wednesday"
	Thursday  Day = "thursday"
	Friday    Day = "friday"
	Saturday  Day = "saturday"
	Sunday    Day = "sunday"
)

// Weekdays is the work week in enumeration order (Monday..Friday).
var Weekdays = []Day{Monday, Tuesday, Wednesday, Thursday, Friday}

// AllDays is the full week in canonical order, used when sorting
// multi-day optimization results (see §5 "sort by day enum").
var AllDays = []Day{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// dayCode is the two-letter day code as it appears in schedule_pattern.
var dayCode = map[Day]string{
	Monday:    "Mo",
	Tuesday:   "Tu",
	Wednesday: "We",
	Thursday:  "Th",
	Friday:    "Fr",
	Saturday:  "Sa",
	Sunday:    "Su",
}

// Code returns the day's two-letter code.
func (d Day) Code() string {
	return dayCode[d]
}

// Valid reports whether the value is one of the seven days of the week.
func (d Day) Valid() bool {
	_, ok := dayCode[d]
	return ok
}

// DaySet returns the working day set for optimization, honoring the
// include_saturday/include_sunday flags (§4.3 "Day set").
func DaySet(includeSaturday, includeSunday bool) []Day {
	days := make([]Day, 0, 7)
	days = append(days, Weekdays...)
	if includeSaturday {
		days = append(days, Saturday)
	}
	if includeSunday {
		days = append(days, Sunday)
	}
	return days
}

// Point is a geographic point. Coordinates may be absent (see Customer),
// so wherever a point is required the caller checks HasCoords first —
// VRPSolver.Solve lists customers without coordinates as skipped; the
// matrix providers do not check.
type Point struct {
	Lat float64
	Lng float64
}

// HasCoords returns false for the zero Point value, used as the marker
// for a customer's missing coordinates.
func (p Point) HasCoords() bool {
	return p.Lat != 0 || p.Lng != 0
}

// String returns the coordinates as "lat,lng" for logs/errors.
func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

// ServiceType is the type of a service visit.
type ServiceType string

const (
	ServiceResidential ServiceType = "residential"
	ServiceCommercial  ServiceType = "commercial"
)

// CustomerStatus is a customer's status in the external (non-Core) system.
type CustomerStatus string

const (
	StatusPending  CustomerStatus = "pending"
	StatusActive   CustomerStatus = "active"
	StatusInactive CustomerStatus = "inactive"
)

// Tenant is a tenant; Core never creates or modifies tenants, it only
// reads tenant_id from an already-resolved call (see §6 Auth/tenant
// resolver).
type Tenant struct {
	ID string
}

// Tech is a technician: Core reads it read-only, CRUD is performed by an
// external collaborator.
type Tech struct {
	ID                   string
	TenantID             string
	Name                 string
	Color                string
	Start                Point
	End                  Point
	WorkdayStartMin      int // minutes past midnight
	WorkdayEndMin        int // > WorkdayStartMin
	MaxStopsPerDay       int // >= 1
	EfficiencyMultiplier float64 // > 0
	Active               bool
}

// Capacity returns the tech vertex's VRP capacity (§4.2):
// floor(max_stops_per_day * efficiency_multiplier).
func (t Tech) Capacity() int {
	cap := int(float64(t.MaxStopsPerDay) * t.EfficiencyMultiplier)
	if cap < 1 {
		cap = 1
	}
	return cap
}

// Customer is a customer; Core stores only a reference (reads the fields
// needed for route planning), CRUD happens entirely outside Core.
type Customer struct {
	ID               string
	TenantID         string
	Location         Point
	ServiceType      ServiceType
	VisitDurationMin int
	Difficulty       int // 1..5
	PrimaryDay       Day
	DaysPerWeek      int    // 1, 2, or 3
	SchedulePattern  string // "Mo/We/Fr", set when DaysPerWeek > 1
	Locked           bool
	TimeWindowStart  *int // minutes past midnight, optional
	TimeWindowEnd    *int
	AssignedTechID   *string
	Active           bool
	Status           CustomerStatus
}

// EffectiveServiceMin is the visit duration adjusted for difficulty (§3
// "Service duration formula"): visit_duration_min + 5 * max(0, difficulty-1).
func (c Customer) EffectiveServiceMin() int {
	extra := 5 * maxInt(0, c.Difficulty-1)
	return c.VisitDurationMin + extra
}

// ServesOn implements the §3 day-predicate: single-day customers are
// checked against primary_day, multi-day customers by whether their
// two-letter code appears in schedule_pattern (codes separated by "/").
func (c Customer) ServesOn(day Day) bool {
	if c.DaysPerWeek <= 1 {
		return c.PrimaryDay == day
	}
	code := day.Code()
	for _, part := range strings.Split(c.SchedulePattern, "/") {
		if part == code {
			return true
		}
	}
	return false
}

// HasCoordinates reports whether the customer can be included in a VRP
// solve; customers without coordinates are excluded before solving and
// land in the skipped list (§4.2 edge cases, §8 invariant 5).
func (c Customer) HasCoordinates() bool {
	return c.Location.HasCoords()
}

// TempAssignment is a customer's temporary reassignment for a day-date
// (§3). Core is the sole owner of this entity.
type TempAssignment struct {
	ID             string
	TenantID       string
	CustomerID     string
	TechID         string
	ServiceDay     Day
	AssignmentDate time.Time
}

// Expired reports whether the record has expired relative to the given
// current date: assignment_date < today - 6d (§3).
func (t TempAssignment) Expired(today time.Time) bool {
	cutoff := today.AddDate(0, 0, -6)
	return t.AssignmentDate.Before(truncateDay(cutoff))
}

// EffectiveAssignment computes the §3 "Effective assignment" rule: if a
// non-expired TempAssignment exists for (customer, day, date), its
// tech_id is used, otherwise customer.assigned_tech_id (may be nil).
func EffectiveAssignment(customer Customer, temp *TempAssignment, today time.Time) *string {
	if temp != nil && !temp.Expired(today) {
		id := temp.TechID
		return &id
	}
	return customer.AssignedTechID
}

// RouteStop is an editable record of a single route stop (FULL §3.FULL),
// used by the reorder_stops/move_stop branch alongside the dense
// TechRoute.StopSequence read by DailyRouteMaterializer.
type RouteStop struct {
	ID                  string
	TechRouteID         string
	CustomerID          string
	Sequence            int // dense numbering 1..n
	DistanceFromPrevM   int
	DurationFromPrevMin int
}

// TechRoute is one technician's route for a single day-date (§3). Core is
// the sole owner.
type TechRoute struct {
	ID                   string
	TenantID             string
	TechID               string
	ServiceDay           Day
	RouteDate            time.Time
	StopSequence         []string // customer ids, in solver order
	Stops                []RouteStop
	TotalDistanceMiles   float64
	TotalDurationMinutes int
}

// TotalCustomers returns the route's stop count (§8 invariant 2:
// total_customers == len(stop_sequence)).
func (r TechRoute) TotalCustomers() int {
	return len(r.StopSequence)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
