package flexconfig

import (
	"errors"
	"testing"
)

func TestEntryCollectorTryRecordsFailures(t *testing.T) {
	c := newEntryCollector("ssm:/app")
	calls := 0
	ok := func() error {
		calls++
		return nil
	}
	boom := func() error {
		calls++
		return errors.New("boom")
	}

	if _, succeeded := c.try("a", ok); !succeeded {
		t.Fatal("expected first entry to succeed")
	}
	srcErr, succeeded := c.try("b", boom)
	if succeeded {
		t.Fatal("expected second entry to fail")
	}
	if srcErr.Source != "ssm:/app" || srcErr.Entry != "b" {
		t.Fatalf("unexpected source error %+v", srcErr)
	}
	if calls != 2 {
		t.Fatalf("expected both entries to run, got %d calls", calls)
	}
	group := c.result()
	if !group.Has() || len(group.Entries()) != 1 {
		t.Fatalf("expected one recorded failure, got %v", group)
	}
}

func TestEntryCollectorKeepsExistingSourceError(t *testing.T) {
	c := newEntryCollector("outer")
	inner := &SourceError{Source: "inner", Entry: "x", Err: ErrMalformedValue}
	got := c.fail("ignored", inner)
	if got != inner {
		t.Fatalf("expected existing SourceError to be reused, got %+v", got)
	}
}

func TestEntryCollectorResultNilWhenClean(t *testing.T) {
	c := newEntryCollector("src")
	if c.result() != nil {
		t.Fatal("expected nil result without failures")
	}
}
