package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logistics/internal/routing/domain"
)

func setupTempMockDB(t *testing.T) (pgxmock.PgxPoolIface, *PostgresTempAssignmentRepository) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	adapter := &pgxMockAdapter{mock: mock}
	repo := NewPostgresTempAssignmentRepository(adapter)

	return mock, repo
}

func TestPostgresTempAssignmentRepository_Find_NotFound(t *testing.T) {
	mock, repo := setupTempMockDB(t)
	defer mock.Close()

	date := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM temp_assignments`).
		WithArgs("tenant-1", "c1", "monday", date).
		WillReturnError(pgx.ErrNoRows)

	ta, err := repo.Find(context.Background(), "tenant-1", "c1", domain.Monday, date)

	require.NoError(t, err)
	assert.Nil(t, ta)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTempAssignmentRepository_Find_Found(t *testing.T) {
	mock, repo := setupTempMockDB(t)
	defer mock.Close()

	date := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{"id", "tenant_id", "customer_id", "tech_id", "service_day", "assignment_date"}).
		AddRow("ta-1", "tenant-1", "c1", "t2", "monday", date)

	mock.ExpectQuery(`SELECT .* FROM temp_assignments`).
		WithArgs("tenant-1", "c1", "monday", date).
		WillReturnRows(rows)

	ta, err := repo.Find(context.Background(), "tenant-1", "c1", domain.Monday, date)

	require.NoError(t, err)
	require.NotNil(t, ta)
	assert.Equal(t, "t2", ta.TechID)
	assert.Equal(t, domain.Monday, ta.ServiceDay)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTempAssignmentRepository_PurgeExpired(t *testing.T) {
	mock, repo := setupTempMockDB(t)
	defer mock.Close()

	today := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`DELETE FROM temp_assignments`).
		WithArgs("tenant-1", today.AddDate(0, 0, -6)).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	err := repo.PurgeExpired(context.Background(), "tenant-1", today)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTempAssignmentRepository_Insert(t *testing.T) {
	mock, repo := setupTempMockDB(t)
	defer mock.Close()

	date := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	assignment := domain.TempAssignment{
		TenantID:       "tenant-1",
		CustomerID:     "c1",
		TechID:         "t2",
		ServiceDay:     domain.Monday,
		AssignmentDate: date,
	}

	mock.ExpectQuery(`INSERT INTO temp_assignments`).
		WithArgs("tenant-1", "c1", "t2", "monday", date).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("ta-1"))

	err := repo.Insert(context.Background(), assignment)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTempAssignmentRepository_Delete(t *testing.T) {
	mock, repo := setupTempMockDB(t)
	defer mock.Close()

	date := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`DELETE FROM temp_assignments`).
		WithArgs("tenant-1", "c1", "monday", date).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	err := repo.Delete(context.Background(), "tenant-1", "c1", domain.Monday, date)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
