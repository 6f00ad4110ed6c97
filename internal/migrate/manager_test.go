package migrate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestUpSkipsAppliedAndRunsPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	dir := t.TempDir()
	for name, body := range map[string]string{
		"0001_payroll.up.sql": "create table vault (id int);",
		"0002_extra.up.sql":   "alter table vault add column note text;\ncreate index vault_note_idx on vault (note);",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	mock.ExpectExec("create table if not exists payvault_schema_history").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from payvault_schema_history").
		WithArgs("migration").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_payroll.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("alter table vault").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create index vault_note_idx").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("insert into payvault_schema_history").
		WithArgs("0002_extra.up.sql", "migration", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mgr := NewManager(db, dir, "")
	if err := mgr.Up(context.Background()); err != nil {
		t.Fatalf("Up: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCollectSQLMissingDirIsEmpty(t *testing.T) {
	files, err := collectSQL(filepath.Join(t.TempDir(), "absent"), ".sql")
	if err != nil {
		t.Fatalf("collectSQL: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected no files, got %d", len(files))
	}
}

func TestSplitStatementsHonorsQuotes(t *testing.T) {
	stmts := splitStatements("insert into t values ('a;b'); select 1;")
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
}
