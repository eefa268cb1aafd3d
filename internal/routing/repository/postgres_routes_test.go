package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logistics/internal/routing/domain"
)

type pgxMockAdapter struct {
	mock pgxmock.PgxPoolIface
}

func (a *pgxMockAdapter) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return a.mock.Exec(ctx, sql, args...)
}

func (a *pgxMockAdapter) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return a.mock.Query(ctx, sql, args...)
}

func (a *pgxMockAdapter) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return a.mock.QueryRow(ctx, sql, args...)
}

func (a *pgxMockAdapter) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	return a.mock.BeginTx(ctx, txOptions)
}

func (a *pgxMockAdapter) Close() {
	a.mock.Close()
}

func (a *pgxMockAdapter) Ping(ctx context.Context) error {
	return a.mock.Ping(ctx)
}

func setupMockDB(t *testing.T) (pgxmock.PgxPoolIface, *PostgresRouteRepository) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	adapter := &pgxMockAdapter{mock: mock}
	repo := NewPostgresRouteRepository(adapter)

	return mock, repo
}

func TestPostgresRouteRepository_SaveRoutes_RejectsForeignTech(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("t1", "tenant-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, err := repo.SaveRoutes(context.Background(), "tenant-1", domain.Monday, []SaveRoutesInput{
		{TechID: "t1", ServiceDay: domain.Monday, RouteDate: time.Now(), StopCustomerIDs: []string{"c1"}},
	})

	assert.ErrorIs(t, err, ErrTechNotInTenant)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRouteRepository_SaveRoutes_DeletesAndInserts(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	routeDate := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("t1", "tenant-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(`DELETE FROM tech_routes`).
		WithArgs("tenant-1", "monday").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectQuery(`INSERT INTO tech_routes`).
		WithArgs("tenant-1", "t1", "monday", routeDate, []string{"c1", "c2"}, 12.5, 45).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("route-1"))
	mock.ExpectExec(`INSERT INTO route_stops`).
		WithArgs("route-1", "c1", 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO route_stops`).
		WithArgs("route-1", "c2", 2).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	ids, err := repo.SaveRoutes(context.Background(), "tenant-1", domain.Monday, []SaveRoutesInput{
		{
			TechID:               "t1",
			ServiceDay:           domain.Monday,
			RouteDate:            routeDate,
			StopCustomerIDs:      []string{"c1", "c2"},
			TotalDistanceMiles:   12.5,
			TotalDurationMinutes: 45,
		},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"route-1"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRouteRepository_GetRoute_NotFound(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT .* FROM tech_routes`).
		WithArgs("route-x", "tenant-1").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetRoute(context.Background(), "tenant-1", "route-x")

	assert.ErrorIs(t, err, ErrRouteNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRouteRepository_GetRoute_DatabaseError(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT .* FROM tech_routes`).
		WithArgs("route-x", "tenant-1").
		WillReturnError(errors.New("connection lost"))

	_, err := repo.GetRoute(context.Background(), "tenant-1", "route-x")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "get tech route")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRouteRepository_InsertRoute_DoesNotDeleteDay(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	routeDate := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("t2", "tenant-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`INSERT INTO tech_routes`).
		WithArgs("tenant-1", "t2", "monday", routeDate, []string{"c3"}, 4.0, 15).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("route-2"))
	mock.ExpectExec(`INSERT INTO route_stops`).
		WithArgs("route-2", "c3", 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	id, err := repo.InsertRoute(context.Background(), "tenant-1", domain.Monday, SaveRoutesInput{
		TechID:               "t2",
		ServiceDay:           domain.Monday,
		RouteDate:            routeDate,
		StopCustomerIDs:      []string{"c3"},
		TotalDistanceMiles:   4.0,
		TotalDurationMinutes: 15,
	})

	require.NoError(t, err)
	assert.Equal(t, "route-2", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRouteRepository_InsertRoute_RejectsForeignTech(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("t9", "tenant-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, err := repo.InsertRoute(context.Background(), "tenant-1", domain.Monday, SaveRoutesInput{
		TechID:          "t9",
		ServiceDay:      domain.Monday,
		RouteDate:       time.Now(),
		StopCustomerIDs: []string{"c1"},
	})

	assert.ErrorIs(t, err, ErrTechNotInTenant)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRouteRepository_DeleteDayRoutes(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM tech_routes`).
		WithArgs("tenant-1", "monday").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	err := repo.DeleteDayRoutes(context.Background(), "tenant-1", domain.Monday)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRouteRepository_DeleteTechDayRoute(t *testing.T) {
	mock, repo := setupMockDB(t)
	defer mock.Close()

	date := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`DELETE FROM tech_routes`).
		WithArgs("tenant-1", "t1", "monday", date).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	err := repo.DeleteTechDayRoute(context.Background(), "tenant-1", "t1", domain.Monday, date)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
