package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newLinkRepoWithMock(t *testing.T) (*LinkRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &LinkRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestLinkReportsInsert(t *testing.T) {
	repo, mock, done := newLinkRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO document_links").
		WithArgs("ord-1", "sol-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := repo.Link(context.Background(), "ord-1", "sol-1")
	if err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if !created {
		t.Fatalf("expected created=true for new pair")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLinkConflictIsNoop(t *testing.T) {
	repo, mock, done := newLinkRepoWithMock(t)
	defer done()

	// ON CONFLICT DO NOTHING: zero rows affected, no error.
	mock.ExpectExec("INSERT INTO document_links").
		WithArgs("ord-1", "sol-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := repo.Link(context.Background(), "ord-1", "sol-1")
	if err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if created {
		t.Fatalf("expected created=false for existing pair")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLinkExists(t *testing.T) {
	repo, mock, done := newLinkRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("ord-1", "sol-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.Exists(context.Background(), "ord-1", "sol-1")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !exists {
		t.Fatalf("expected exists=true")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
