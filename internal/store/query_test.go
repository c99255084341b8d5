package store

import (
	"reflect"
	"testing"

	"go.uber.org/zap"
)

func TestWhereEmptyOptions(t *testing.T) {
	where, args := QueryOptions{}.where()
	if where != "" {
		t.Fatalf("expected empty where clause, got %q", where)
	}
	if len(args) != 0 {
		t.Fatalf("expected no args, got %v", args)
	}
}

func TestWhereChannelAndTime(t *testing.T) {
	where, args := QueryOptions{Channel: "logs:app", MinTime: 1700000000000}.where()

	expected := "WHERE channel = ? AND time >= ?"
	if where != expected {
		t.Fatalf("expected %q, got %q", expected, where)
	}
	if !reflect.DeepEqual(args, []any{"logs:app", int64(1700000000000)}) {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestWhereLevelsAndNamespaces(t *testing.T) {
	where, args := QueryOptions{
		Levels:     []string{"error", "fatal"},
		Namespaces: []string{"auth"},
	}.where()

	expected := "WHERE level_label IN (?,?) AND namespace IN (?)"
	if where != expected {
		t.Fatalf("expected %q, got %q", expected, where)
	}
	if !reflect.DeepEqual(args, []any{"error", "fatal", "auth"}) {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestWhereSearchPattern(t *testing.T) {
	where, args := QueryOptions{Search: "timeout"}.where()

	expected := "WHERE (msg LIKE ? OR data LIKE ?)"
	if where != expected {
		t.Fatalf("expected %q, got %q", expected, where)
	}
	if !reflect.DeepEqual(args, []any{"%timeout%", "%timeout%"}) {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestRebindPostgres(t *testing.T) {
	s := &Store{driver: "pgx", logger: zap.NewNop()}

	got := s.rebind("SELECT * FROM logs WHERE channel = ? AND time >= ? LIMIT ?")
	expected := "SELECT * FROM logs WHERE channel = $1 AND time >= $2 LIMIT $3"
	if got != expected {
		t.Fatalf("expected %q, got %q", expected, got)
	}
}

func TestRebindPostgresManyPlaceholders(t *testing.T) {
	s := &Store{driver: "pgx", logger: zap.NewNop()}

	query := "IN (" + "?," + "?,?,?,?,?,?,?,?,?,?)"
	got := s.rebind(query)
	expected := "IN ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)"
	if got != expected {
		t.Fatalf("expected %q, got %q", expected, got)
	}
}

func TestRebindMySQLUntouched(t *testing.T) {
	s := &Store{driver: "mysql", logger: zap.NewNop()}

	query := "SELECT * FROM logs WHERE channel = ?"
	if got := s.rebind(query); got != query {
		t.Fatalf("expected query untouched, got %q", got)
	}
}
