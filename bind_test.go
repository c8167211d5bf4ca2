package flexconfig

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestBindPopulatesNestedStruct(t *testing.T) {
	type Database struct {
		Host    string
		Port    int
		Timeout time.Duration `flex:"key:connect_timeout default:5s"`
	}
	type Common struct {
		Region string
	}
	type Config struct {
		Common
		Database Database
		Replicas []Database
		Labels   map[string]string
		Retries  *int   `flex:"default:3"`
		Ignored  string `flex:"-"`
		hidden   string
	}
	tree := treeOf(t, `{
		"region": "eu-west-1",
		"database": {"host": "db1", "port": 5432, "connect_timeout": "00:00:10"},
		"replicas": [{"host": "r1", "port": 1}, {"host": "r2", "port": 2}],
		"labels": {"team": "core", "tier": "1"},
		"ignored": "nope"
	}`)

	var cfg Config
	if err := tree.Bind(&cfg); err != nil {
		t.Fatalf("Bind returned error: %v", err)
	}
	if cfg.Region != "eu-west-1" {
		t.Fatalf("expected embedded field to bind, got %q", cfg.Region)
	}
	if cfg.Database.Host != "db1" || cfg.Database.Port != 5432 || cfg.Database.Timeout != 10*time.Second {
		t.Fatalf("unexpected database %+v", cfg.Database)
	}
	if len(cfg.Replicas) != 2 || cfg.Replicas[1].Host != "r2" || cfg.Replicas[0].Timeout != 5*time.Second {
		t.Fatalf("unexpected replicas %+v", cfg.Replicas)
	}
	if cfg.Labels["team"] != "core" || len(cfg.Labels) != 2 {
		t.Fatalf("unexpected labels %v", cfg.Labels)
	}
	if cfg.Retries == nil || *cfg.Retries != 3 {
		t.Fatalf("expected default retries, got %v", cfg.Retries)
	}
	if cfg.Ignored != "" || cfg.hidden != "" {
		t.Fatalf("expected skipped fields to stay empty")
	}
}

func TestBindFormatJSON(t *testing.T) {
	type Limits struct {
		Read  int `json:"read"`
		Write int `json:"write"`
	}
	type Config struct {
		Limits Limits `flex:"format:json"`
	}
	m := NewFlatMap()
	m.SetString("limits", `{"read":10,"write":2}`)
	var cfg Config
	if err := NewTree(m.Snapshot()).Bind(&cfg); err != nil {
		t.Fatalf("Bind returned error: %v", err)
	}
	if cfg.Limits.Read != 10 || cfg.Limits.Write != 2 {
		t.Fatalf("unexpected limits %+v", cfg.Limits)
	}
}

func TestBindAggregatesErrors(t *testing.T) {
	type Inner struct {
		Port int
	}
	type Config struct {
		Timeout time.Duration
		Inner   Inner
		Bad     string `flex:"unknown:x"`
		Count   int    `flex:"default:many"`
	}
	tree := treeOf(t, `{"timeout":"soon","inner":{"port":"http"}}`)
	var cfg Config
	err := tree.Bind(&cfg)
	var group *ErrorGroup
	if !errors.As(err, &group) {
		t.Fatalf("expected ErrorGroup, got %v", err)
	}
	fields := group.Fields()
	if len(fields) != 4 {
		t.Fatalf("expected 4 field errors, got %d: %v", len(fields), err)
	}
	paths := make([]string, len(fields))
	for i, f := range fields {
		paths[i] = f.FieldPath
	}
	if got := strings.Join(paths, ","); got != "Timeout,Inner.Port,Bad,Count" {
		t.Fatalf("unexpected field paths %s", got)
	}
	if fields[1].Key != "inner:port" {
		t.Fatalf("expected nested key inner:port, got %s", fields[1].Key)
	}
}

func TestBindRejectsInvalidTargets(t *testing.T) {
	tree := NewTree(nil)
	var cfg struct{ A string }
	if err := tree.Bind(nil); err == nil {
		t.Fatal("expected error for nil target")
	}
	if err := tree.Bind(cfg); err == nil {
		t.Fatal("expected error for non-pointer target")
	}
	n := 1
	if err := tree.Bind(&n); err == nil {
		t.Fatal("expected error for non-struct target")
	}
}

func TestBindLeavesMissingFieldsUntouched(t *testing.T) {
	type Config struct {
		Name string
		Port int
	}
	cfg := Config{Name: "keep", Port: 1}
	if err := treeOf(t, `{"port":2}`).Bind(&cfg); err != nil {
		t.Fatalf("Bind returned error: %v", err)
	}
	if cfg.Name != "keep" || cfg.Port != 2 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}
