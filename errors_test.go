package flexconfig

import (
	"errors"
	"testing"
)

func TestErrorGroupFieldsCopy(t *testing.T) {
	group := &ErrorGroup{}
	appendFieldError(&group, FieldError{
		FieldPath: "Database.URL",
		Key:       "database:url",
		Err:       errors.New("missing"),
	})
	fields := group.Fields()
	if len(fields) != 1 {
		t.Fatalf("expected 1 field error, got %d", len(fields))
	}
	fields[0].FieldPath = "mutated"
	if group.Fields()[0].FieldPath != "Database.URL" {
		t.Fatal("expected Fields to return copy")
	}
	if !group.Has() {
		t.Fatal("expected Has to be true")
	}
}

func TestAppendFieldErrorIgnoresNil(t *testing.T) {
	var group *ErrorGroup
	appendFieldError(&group, FieldError{FieldPath: "Port"})
	if group.Has() {
		t.Fatal("expected nil error to be ignored")
	}
}

func TestSourceErrorString(t *testing.T) {
	err := &SourceError{
		Source: "ssm:/app",
		Entry:  "db/password",
		Err:    ErrEntryNotFound,
	}
	if err.Error() != "flexconfig: source ssm:/app (db/password): entry not found" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
	if !errors.Is(err, ErrEntryNotFound) {
		t.Fatal("expected SourceError to unwrap to ErrEntryNotFound")
	}
}

func TestLoadErrorsUnwrap(t *testing.T) {
	group := &LoadErrors{Source: "vault:secret"}
	group.entries = append(group.entries,
		&SourceError{Source: "vault:secret", Entry: "a", Err: ErrMalformedValue},
		&SourceError{Source: "vault:secret", Entry: "b", Err: ErrVersionStageNotFound},
	)
	if !errors.Is(group, ErrMalformedValue) || !errors.Is(group, ErrVersionStageNotFound) {
		t.Fatalf("expected both causes to be reachable, got %v", group)
	}
	var srcErr *SourceError
	if !errors.As(group, &srcErr) || srcErr.Entry != "a" {
		t.Fatalf("expected first entry error, got %+v", srcErr)
	}
	if len(group.Entries()) != 2 {
		t.Fatalf("expected two entries, got %d", len(group.Entries()))
	}
}
