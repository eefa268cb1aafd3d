package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"logistics/internal/routing/coordinator"
	"logistics/internal/routing/domain"
	"logistics/internal/routing/repository"
	"logistics/pkg/database"
	"logistics/pkg/telemetry"
)

// PostgresDataSource reads techs and customers (spec §6 "Consumed external
// collaborators") and mixes in the effective assignment from Core's own
// TempAssignment records (spec §3 "Effective assignment"). It implements
// both coordinator.DataSource and CustomerDirectory, since both need the
// same tenant-scoped customers table.
type PostgresDataSource struct {
	db    database.DB
	temps repository.TempAssignmentRepository
}

// NewPostgresDataSource builds the tech/customer read adapter.
func NewPostgresDataSource(db database.DB, temps repository.TempAssignmentRepository) *PostgresDataSource {
	return &PostgresDataSource{db: db, temps: temps}
}

// ActiveTechs returns the tenant's active techs, optionally filtered to
// selectedTechIDs (empty means all active techs).
func (r *PostgresDataSource) ActiveTechs(ctx context.Context, tenantID string, selectedTechIDs []string) ([]domain.Tech, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresDataSource.ActiveTechs")
	defer span.End()

	query := `
		SELECT id, tenant_id, name, color, start_lat, start_lng, end_lat, end_lng,
		       workday_start_min, workday_end_min, max_stops_per_day, efficiency_multiplier, active
		FROM techs
		WHERE tenant_id = $1 AND active = true
	`
	args := []any{tenantID}
	if len(selectedTechIDs) > 0 {
		query += ` AND id = ANY($2)`
		args = append(args, selectedTechIDs)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query techs: %w", err)
	}
	defer rows.Close()

	var techs []domain.Tech
	for rows.Next() {
		var t domain.Tech
		if err := rows.Scan(&t.ID, &t.TenantID, &t.Name, &t.Color, &t.Start.Lat, &t.Start.Lng, &t.End.Lat, &t.End.Lng,
			&t.WorkdayStartMin, &t.WorkdayEndMin, &t.MaxStopsPerDay, &t.EfficiencyMultiplier, &t.Active); err != nil {
			return nil, fmt.Errorf("scan tech: %w", err)
		}
		techs = append(techs, t)
	}

	return techs, rows.Err()
}

// EligibleCustomers returns the tenant's customers matching day/date under
// include_unassigned/include_pending, each with its effective tech
// assignment resolved (spec §3 "Effective assignment").
func (r *PostgresDataSource) EligibleCustomers(ctx context.Context, tenantID string, day domain.Day, today time.Time, includeUnassigned, includePending bool) ([]coordinator.CustomerView, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresDataSource.EligibleCustomers")
	defer span.End()

	query := `
		SELECT id, tenant_id, lat, lng, service_type, visit_duration_min, difficulty, primary_day,
		       days_per_week, schedule_pattern, locked, time_window_start, time_window_end,
		       assigned_tech_id, active, status
		FROM customers
		WHERE tenant_id = $1 AND active = true
	`
	args := []any{tenantID}
	if !includePending {
		args = append(args, string(domain.StatusPending))
		query += fmt.Sprintf(` AND status != $%d`, len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query customers: %w", err)
	}
	defer rows.Close()

	var all []domain.Customer
	for rows.Next() {
		var c domain.Customer
		var serviceType, status string
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Location.Lat, &c.Location.Lng, &serviceType, &c.VisitDurationMin,
			&c.Difficulty, &c.PrimaryDay, &c.DaysPerWeek, &c.SchedulePattern, &c.Locked,
			&c.TimeWindowStart, &c.TimeWindowEnd, &c.AssignedTechID, &c.Active, &status); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		c.ServiceType = domain.ServiceType(serviceType)
		c.Status = domain.CustomerStatus(status)
		all = append(all, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	views := make([]coordinator.CustomerView, 0, len(all))
	for _, c := range all {
		if !c.ServesOn(day) {
			continue
		}
		if !includeUnassigned && c.AssignedTechID == nil {
			continue
		}

		temp, err := r.temps.Find(ctx, tenantID, c.ID, day, today)
		if err != nil {
			return nil, fmt.Errorf("find temp assignment for customer %s: %w", c.ID, err)
		}

		assigned := domain.EffectiveAssignment(c, temp, today)
		views = append(views, coordinator.CustomerView{Customer: c, AssignedTechID: assigned})
	}

	return views, nil
}

// GetCustomer returns one tenant-scoped customer, ignoring temp assignments
// (used by SetTempAssignment to read the permanent assigned_tech_id, spec
// §4.5 step 2).
func (r *PostgresDataSource) GetCustomer(ctx context.Context, tenantID, customerID string) (domain.Customer, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresDataSource.GetCustomer")
	defer span.End()

	var c domain.Customer
	var serviceType, status string
	err := r.db.QueryRow(ctx, `
		SELECT id, tenant_id, lat, lng, service_type, visit_duration_min, difficulty, primary_day,
		       days_per_week, schedule_pattern, locked, time_window_start, time_window_end,
		       assigned_tech_id, active, status
		FROM customers
		WHERE id = $1 AND tenant_id = $2
	`, customerID, tenantID).Scan(&c.ID, &c.TenantID, &c.Location.Lat, &c.Location.Lng, &serviceType, &c.VisitDurationMin,
		&c.Difficulty, &c.PrimaryDay, &c.DaysPerWeek, &c.SchedulePattern, &c.Locked,
		&c.TimeWindowStart, &c.TimeWindowEnd, &c.AssignedTechID, &c.Active, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Customer{}, fmt.Errorf("customer %s: %w", customerID, pgx.ErrNoRows)
		}
		return domain.Customer{}, fmt.Errorf("get customer: %w", err)
	}
	c.ServiceType = domain.ServiceType(serviceType)
	c.Status = domain.CustomerStatus(status)

	return c, nil
}

// ResolveCustomers returns display records (name, address) for a set of ids
// scoped to tenant (spec §4.4/§4.6 "read contract").
func (r *PostgresDataSource) ResolveCustomers(ctx context.Context, tenantID string, customerIDs []string) (map[string]CustomerDisplay, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresDataSource.ResolveCustomers")
	defer span.End()

	if len(customerIDs) == 0 {
		return map[string]CustomerDisplay{}, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, display_name, address
		FROM customers
		WHERE tenant_id = $1 AND id = ANY($2)
	`, tenantID, customerIDs)
	if err != nil {
		return nil, fmt.Errorf("query customer display records: %w", err)
	}
	defer rows.Close()

	out := make(map[string]CustomerDisplay, len(customerIDs))
	for rows.Next() {
		var d CustomerDisplay
		if err := rows.Scan(&d.ID, &d.Name, &d.Address); err != nil {
			return nil, fmt.Errorf("scan customer display record: %w", err)
		}
		out[d.ID] = d
	}

	return out, rows.Err()
}
