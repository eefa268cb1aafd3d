package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"logistics/internal/routing/domain"
	"logistics/pkg/database"
	"logistics/pkg/telemetry"
)

// PostgresTempAssignmentRepository is the PostgreSQL implementation of
// TempAssignmentRepository (§4.5 TempAssignmentService).
type PostgresTempAssignmentRepository struct {
	db database.DB
}

// NewPostgresTempAssignmentRepository creates the temporary assignment
// repository.
func NewPostgresTempAssignmentRepository(db database.DB) *PostgresTempAssignmentRepository {
	return &PostgresTempAssignmentRepository{db: db}
}

// PurgeExpired deletes expired records (assignment_date < today-6d), §4.5
// step 1.
func (r *PostgresTempAssignmentRepository) PurgeExpired(ctx context.Context, tenantID string, today time.Time) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresTempAssignmentRepository.PurgeExpired")
	defer span.End()

	cutoff := today.AddDate(0, 0, -6)
	if _, err := r.db.Exec(ctx, `
		DELETE FROM temp_assignments WHERE tenant_id = $1 AND assignment_date < $2
	`, tenantID, cutoff); err != nil {
		return fmt.Errorf("purge expired temp assignments: %w", err)
	}

	return nil
}

// Find returns the current assignment for the key (customer, service_day,
// date), if one exists.
func (r *PostgresTempAssignmentRepository) Find(ctx context.Context, tenantID, customerID string, day domain.Day, date time.Time) (*domain.TempAssignment, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresTempAssignmentRepository.Find")
	defer span.End()

	var ta domain.TempAssignment
	var serviceDay string

	err := r.db.QueryRow(ctx, `
		SELECT id, tenant_id, customer_id, tech_id, service_day, assignment_date
		FROM temp_assignments
		WHERE tenant_id = $1 AND customer_id = $2 AND service_day = $3 AND assignment_date = $4
	`, tenantID, customerID, string(day), date).Scan(&ta.ID, &ta.TenantID, &ta.CustomerID, &ta.TechID, &serviceDay, &ta.AssignmentDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find temp assignment: %w", err)
	}
	ta.ServiceDay = domain.Day(serviceDay)

	return &ta, nil
}

// Delete removes a temporary assignment by its key; a missing record is
// not an error.
func (r *PostgresTempAssignmentRepository) Delete(ctx context.Context, tenantID, customerID string, day domain.Day, date time.Time) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresTempAssignmentRepository.Delete")
	defer span.End()

	if _, err := r.db.Exec(ctx, `
		DELETE FROM temp_assignments
		WHERE tenant_id = $1 AND customer_id = $2 AND service_day = $3 AND assignment_date = $4
	`, tenantID, customerID, string(day), date); err != nil {
		return fmt.Errorf("delete temp assignment: %w", err)
	}

	return nil
}

// Insert creates a new temporary assignment.
func (r *PostgresTempAssignmentRepository) Insert(ctx context.Context, assignment domain.TempAssignment) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresTempAssignmentRepository.Insert")
	defer span.End()

	err := r.db.QueryRow(ctx, `
		INSERT INTO temp_assignments (tenant_id, customer_id, tech_id, service_day, assignment_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, assignment.TenantID, assignment.CustomerID, assignment.TechID, string(assignment.ServiceDay), assignment.AssignmentDate).Scan(&assignment.ID)
	if err != nil {
		return fmt.Errorf("insert temp assignment: %w", err)
	}

	return nil
}
