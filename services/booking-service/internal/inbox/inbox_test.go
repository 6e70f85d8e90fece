package inbox

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
)

func TestRepository_ProcessedEvents(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := NewRepository(mock)
	ctx := context.Background()

	mock.ExpectQuery("SELECT 1 FROM processed_events").WithArgs("stripe", "evt").WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(1))
	processed, err := repo.AlreadyProcessed(ctx, "stripe", "evt")
	if err != nil || !processed {
		t.Fatalf("expected existing row, got processed=%v err=%v", processed, err)
	}

	mock.ExpectQuery("SELECT 1 FROM processed_events").WithArgs("stripe", "evt-miss").WillReturnError(pgx.ErrNoRows)
	processed, err = repo.AlreadyProcessed(ctx, "stripe", "evt-miss")
	if err != nil || processed {
		t.Fatalf("expected missing row, got processed=%v err=%v", processed, err)
	}

	mock.ExpectExec("INSERT INTO processed_events").WithArgs("stripe", "evt-new").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	ok, err := repo.MarkProcessed(ctx, "stripe", "evt-new")
	if err != nil || !ok {
		t.Fatalf("expected mark processed success, got %v %v", ok, err)
	}

	mock.ExpectExec("INSERT INTO processed_events").WithArgs("stripe", "evt-new").WillReturnResult(pgxmock.NewResult("INSERT", 0))
	ok, err = repo.MarkProcessed(ctx, "stripe", "evt-new")
	if err != nil || ok {
		t.Fatalf("expected duplicate mark to report false, got %v %v", ok, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepository_Inbox(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := NewRepository(mock)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO inbox_events").WithArgs("e1", "payments.reservation.confirmed.v1").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if ok, err := repo.Record(ctx, "e1", "payments.reservation.confirmed.v1"); err != nil || !ok {
		t.Fatalf("expected first record, got %v %v", ok, err)
	}

	mock.ExpectExec("INSERT INTO inbox_events").WithArgs("e1", "payments.reservation.confirmed.v1").WillReturnError(&pgconn.PgError{Code: "23505"})
	if ok, err := repo.Record(ctx, "e1", "payments.reservation.confirmed.v1"); err != nil || ok {
		t.Fatalf("expected duplicate, got %v %v", ok, err)
	}

	mock.ExpectQuery("SELECT 1 FROM inbox_events").WithArgs("e1").WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(1))
	if seen, err := repo.Seen(ctx, "e1"); err != nil || !seen {
		t.Fatalf("expected seen, got %v %v", seen, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if seen, _ := m.Seen(ctx, "e1"); seen {
		t.Fatalf("unexpected seen")
	}
	if ok, _ := m.Record(ctx, "e1", "t"); !ok {
		t.Fatalf("first record should succeed")
	}
	if ok, _ := m.Record(ctx, "e1", "t"); ok {
		t.Fatalf("second record should report duplicate")
	}
	if done, _ := m.AlreadyProcessed(ctx, "stripe", "evt"); done {
		t.Fatalf("unexpected processed")
	}
	if ok, _ := m.MarkProcessed(ctx, "stripe", "evt"); !ok {
		t.Fatalf("first mark should succeed")
	}
	if done, _ := m.AlreadyProcessed(ctx, "local", "evt"); done {
		t.Fatalf("providers are namespaced")
	}
}
