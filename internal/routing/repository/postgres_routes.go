package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"logistics/internal/routing/domain"
	"logistics/pkg/database"
	"logistics/pkg/telemetry"
)

// PostgresRouteRepository is the PostgreSQL implementation of RouteRepository.
type PostgresRouteRepository struct {
	db database.DB
}

// NewPostgresRouteRepository creates the route repository.
func NewPostgresRouteRepository(db database.DB) *PostgresRouteRepository {
	return &PostgresRouteRepository{db: db}
}

// SaveRoutes implements §4.4 "Save contract": verifies the techs belong to
// the tenant, deletes existing routes for (tenant, service_day) regardless
// of route_date, and inserts the new ones — all in one transaction.
func (r *PostgresRouteRepository) SaveRoutes(ctx context.Context, tenantID string, day domain.Day, routes []SaveRoutesInput) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRouteRepository.SaveRoutes")
	defer span.End()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	for _, route := range routes {
		var belongs bool
		err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM techs WHERE id = $1 AND tenant_id = $2)`, route.TechID, tenantID).Scan(&belongs)
		if err != nil {
			return nil, fmt.Errorf("verify tech ownership: %w", err)
		}
		if !belongs {
			return nil, fmt.Errorf("%w: tech %s", ErrTechNotInTenant, route.TechID)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM tech_routes WHERE tenant_id = $1 AND service_day = $2`, tenantID, string(day)); err != nil {
		return nil, fmt.Errorf("delete existing routes: %w", err)
	}

	ids := make([]string, 0, len(routes))
	for _, route := range routes {
		var id string
		err := tx.QueryRow(ctx, `
			INSERT INTO tech_routes (tenant_id, tech_id, service_day, route_date, stop_sequence, total_distance_miles, total_duration_minutes)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`, tenantID, route.TechID, string(day), route.RouteDate, route.StopCustomerIDs, route.TotalDistanceMiles, route.TotalDurationMinutes).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("insert tech route: %w", err)
		}

		for seq, customerID := range route.StopCustomerIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO route_stops (tech_route_id, customer_id, sequence)
				VALUES ($1, $2, $3)
			`, id, customerID, seq+1); err != nil {
				return nil, fmt.Errorf("insert route stop: %w", err)
			}
		}

		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return ids, nil
}

// GetRoutes implements §4.4 "Read contract".
func (r *PostgresRouteRepository) GetRoutes(ctx context.Context, tenantID string, day domain.Day) ([]domain.TechRoute, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRouteRepository.GetRoutes")
	defer span.End()

	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, tech_id, service_day, route_date, stop_sequence, total_distance_miles, total_duration_minutes
		FROM tech_routes
		WHERE tenant_id = $1 AND service_day = $2
	`, tenantID, string(day))
	if err != nil {
		return nil, fmt.Errorf("query tech routes: %w", err)
	}
	defer rows.Close()

	var routes []domain.TechRoute
	for rows.Next() {
		var route domain.TechRoute
		var serviceDay string
		var stopSeq pgtype.Array[string]

		if err := rows.Scan(&route.ID, &route.TenantID, &route.TechID, &serviceDay, &route.RouteDate, &stopSeq, &route.TotalDistanceMiles, &route.TotalDurationMinutes); err != nil {
			return nil, fmt.Errorf("scan tech route: %w", err)
		}
		route.ServiceDay = domain.Day(serviceDay)
		route.StopSequence = stopSeq.Elements
		routes = append(routes, route)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	for i := range routes {
		stops, err := r.loadStops(ctx, routes[i].ID)
		if err != nil {
			return nil, err
		}
		routes[i].Stops = stops
	}

	return routes, nil
}

// GetRoute returns a single route by id, verifying tenant ownership.
func (r *PostgresRouteRepository) GetRoute(ctx context.Context, tenantID, routeID string) (domain.TechRoute, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRouteRepository.GetRoute")
	defer span.End()

	var route domain.TechRoute
	var serviceDay string
	var stopSeq pgtype.Array[string]

	err := r.db.QueryRow(ctx, `
		SELECT id, tenant_id, tech_id, service_day, route_date, stop_sequence, total_distance_miles, total_duration_minutes
		FROM tech_routes
		WHERE id = $1 AND tenant_id = $2
	`, routeID, tenantID).Scan(&route.ID, &route.TenantID, &route.TechID, &serviceDay, &route.RouteDate, &stopSeq, &route.TotalDistanceMiles, &route.TotalDurationMinutes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TechRoute{}, ErrRouteNotFound
		}
		return domain.TechRoute{}, fmt.Errorf("get tech route: %w", err)
	}
	route.ServiceDay = domain.Day(serviceDay)
	route.StopSequence = stopSeq.Elements

	stops, err := r.loadStops(ctx, route.ID)
	if err != nil {
		return domain.TechRoute{}, err
	}
	route.Stops = stops

	return route, nil
}

func (r *PostgresRouteRepository) loadStops(ctx context.Context, routeID string) ([]domain.RouteStop, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tech_route_id, customer_id, sequence, distance_from_prev_m, duration_from_prev_min
		FROM route_stops
		WHERE tech_route_id = $1
		ORDER BY sequence ASC
	`, routeID)
	if err != nil {
		return nil, fmt.Errorf("query route stops: %w", err)
	}
	defer rows.Close()

	var stops []domain.RouteStop
	for rows.Next() {
		var s domain.RouteStop
		if err := rows.Scan(&s.ID, &s.TechRouteID, &s.CustomerID, &s.Sequence, &s.DistanceFromPrevM, &s.DurationFromPrevMin); err != nil {
			return nil, fmt.Errorf("scan route stop: %w", err)
		}
		stops = append(stops, s)
	}

	return stops, rows.Err()
}

// ReorderStops implements §4.4 "Stop reorder": applies the desired
// (stop_id, new_seq) pairs, then ALWAYS renumbers the remaining stops into
// a dense 1..N sequence following the resulting order, regardless of
// whether the input mapping was internally consistent.
func (r *PostgresRouteRepository) ReorderStops(ctx context.Context, tenantID, routeID string, desired map[string]int) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRouteRepository.ReorderStops")
	defer span.End()

	if _, err := r.GetRoute(ctx, tenantID, routeID); err != nil {
		return err
	}

	stops, err := r.loadStops(ctx, routeID)
	if err != nil {
		return err
	}

	type ranked struct {
		stop domain.RouteStop
		rank int
	}
	items := make([]ranked, len(stops))
	for i, s := range stops {
		rank := s.Sequence
		if newSeq, ok := desired[s.ID]; ok {
			rank = newSeq
		}
		items[i] = ranked{stop: s, rank: rank}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].rank != items[j].rank {
			return items[i].rank < items[j].rank
		}
		return items[i].stop.Sequence < items[j].stop.Sequence
	})

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	// Negate the current sequences first so the one-row-at-a-time renumbering
	// below never collides with the unique (tech_route_id, sequence) index.
	if _, err := tx.Exec(ctx, `UPDATE route_stops SET sequence = -sequence WHERE tech_route_id = $1`, routeID); err != nil {
		return fmt.Errorf("park stop sequences: %w", err)
	}

	for i, item := range items {
		if _, err := tx.Exec(ctx, `UPDATE route_stops SET sequence = $1 WHERE id = $2`, i+1, item.stop.ID); err != nil {
			return fmt.Errorf("resequence stop: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// MoveStop implements §4.4 "Stop move".
func (r *PostgresRouteRepository) MoveStop(ctx context.Context, tenantID, stopID, targetRouteID string, insertSeq int) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRouteRepository.MoveStop")
	defer span.End()

	if _, err := r.GetRoute(ctx, tenantID, targetRouteID); err != nil {
		return err
	}

	var sourceRouteID, customerID string
	err := r.db.QueryRow(ctx, `SELECT tech_route_id, customer_id FROM route_stops WHERE id = $1`, stopID).Scan(&sourceRouteID, &customerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrStopNotFound
		}
		return fmt.Errorf("lookup stop: %w", err)
	}

	targetStops, err := r.loadStops(ctx, targetRouteID)
	if err != nil {
		return err
	}

	clamped := insertSeq
	if clamped < 1 {
		clamped = 1
	}
	if clamped > len(targetStops)+1 {
		clamped = len(targetStops) + 1
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	// Spread the target's stops to even values above parkOffset and give the
	// moved stop the odd value just before position clamped, so the
	// renumbering below keeps that order without colliding with the unique
	// (tech_route_id, sequence) index.
	const parkOffset = 1_000_000
	if _, err := tx.Exec(ctx, `UPDATE route_stops SET sequence = 2 * sequence + $1 WHERE tech_route_id = $2`, parkOffset, targetRouteID); err != nil {
		return fmt.Errorf("park target sequences: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE route_stops SET tech_route_id = $1, sequence = $2 WHERE id = $3`, targetRouteID, 2*clamped-1+parkOffset, stopID); err != nil {
		return fmt.Errorf("move stop: %w", err)
	}

	if err := r.resequenceTx(ctx, tx, sourceRouteID); err != nil {
		return err
	}
	if err := r.resequenceTx(ctx, tx, targetRouteID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// resequenceTx renumbers a route's stops into a dense 1..N sequence,
// preserving their current relative order.
func (r *PostgresRouteRepository) resequenceTx(ctx context.Context, tx pgx.Tx, routeID string) error {
	rows, err := tx.Query(ctx, `SELECT id FROM route_stops WHERE tech_route_id = $1 ORDER BY sequence ASC`, routeID)
	if err != nil {
		return fmt.Errorf("query stops for resequence: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan stop id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows iteration: %w", err)
	}

	for i, id := range ids {
		if _, err := tx.Exec(ctx, `UPDATE route_stops SET sequence = $1 WHERE id = $2`, i+1, id); err != nil {
			return fmt.Errorf("update sequence: %w", err)
		}
	}

	return nil
}

// DeleteDayRoutes deletes every TechRoute for the tenant on a given day,
// including their stops (ON DELETE CASCADE on route_stops.tech_route_id,
// see migrations).
func (r *PostgresRouteRepository) DeleteDayRoutes(ctx context.Context, tenantID string, day domain.Day) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRouteRepository.DeleteDayRoutes")
	defer span.End()

	if _, err := r.db.Exec(ctx, `DELETE FROM tech_routes WHERE tenant_id = $1 AND service_day = $2`, tenantID, string(day)); err != nil {
		return fmt.Errorf("delete day routes: %w", err)
	}

	return nil
}

// InsertRoute inserts a single tech's route without deleting other techs'
// routes for the day (§4.5 step 7, called after DeleteTechDayRoute).
func (r *PostgresRouteRepository) InsertRoute(ctx context.Context, tenantID string, day domain.Day, route SaveRoutesInput) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRouteRepository.InsertRoute")
	defer span.End()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var belongs bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM techs WHERE id = $1 AND tenant_id = $2)`, route.TechID, tenantID).Scan(&belongs); err != nil {
		return "", fmt.Errorf("verify tech ownership: %w", err)
	}
	if !belongs {
		return "", fmt.Errorf("%w: tech %s", ErrTechNotInTenant, route.TechID)
	}

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO tech_routes (tenant_id, tech_id, service_day, route_date, stop_sequence, total_distance_miles, total_duration_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, tenantID, route.TechID, string(day), route.RouteDate, route.StopCustomerIDs, route.TotalDistanceMiles, route.TotalDurationMinutes).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert tech route: %w", err)
	}

	for seq, customerID := range route.StopCustomerIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO route_stops (tech_route_id, customer_id, sequence)
			VALUES ($1, $2, $3)
		`, id, customerID, seq+1); err != nil {
			return "", fmt.Errorf("insert route stop: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	return id, nil
}

// DeleteTechDayRoute deletes one tech's route for (day, date) - §4.5 step 7.
func (r *PostgresRouteRepository) DeleteTechDayRoute(ctx context.Context, tenantID, techID string, day domain.Day, date time.Time) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRouteRepository.DeleteTechDayRoute")
	defer span.End()

	if _, err := r.db.Exec(ctx, `
		DELETE FROM tech_routes
		WHERE tenant_id = $1 AND tech_id = $2 AND service_day = $3 AND route_date = $4
	`, tenantID, techID, string(day), date); err != nil {
		return fmt.Errorf("delete tech day route: %w", err)
	}

	return nil
}
