package grove

import (
	"errors"
	"testing"
)

// Shared test types and constructors used across test files.

// mustProvide calls t.Fatal if registration fails.
func mustProvide(t *testing.T, p *Provider, ctor interface{}, opts ...Option) {
	t.Helper()
	if err := p.Provide(ctor, opts...); err != nil {
		t.Fatalf("Provide: %v", err)
	}
}

// mustSupply calls t.Fatal if value registration fails.
func mustSupply(t *testing.T, p *Provider, value interface{}, opts ...Option) {
	t.Helper()
	if err := p.Supply(value, opts...); err != nil {
		t.Fatalf("Supply: %v", err)
	}
}

// mustDecorate calls t.Fatal if decorator registration fails.
func mustDecorate(t *testing.T, p *Provider, ctor interface{}, opts ...Option) {
	t.Helper()
	if err := p.Decorate(ctor, opts...); err != nil {
		t.Fatalf("Decorate: %v", err)
	}
}

// mustAlias calls t.Fatal if alias registration fails.
func mustAlias[P, S any](t *testing.T, p *Provider, opts ...Option) {
	t.Helper()
	if err := Alias[P, S](p, opts...); err != nil {
		t.Fatalf("Alias: %v", err)
	}
}

// mustNew calls t.Fatal if graph compilation fails.
func mustNew(t *testing.T, providers ...*Provider) *Container {
	t.Helper()
	c, err := New(providers...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// mustOpen calls t.Fatal if opening a child scope fails.
func mustOpen(t *testing.T, c *Container, level ...Scope) *Container {
	t.Helper()
	child, err := c.OpenScope(level...)
	if err != nil {
		t.Fatalf("OpenScope: %v", err)
	}
	return child
}

type testLogger struct{ Prefix string }
type testConfig struct{ DSN string }

type testDatabase struct {
	Config *testConfig
	Logger *testLogger
}

type testUserRepo struct {
	DB     *testDatabase
	Logger *testLogger
}

type testService interface {
	Name() string
}

type testUserService struct {
	Repo   *testUserRepo
	Logger *testLogger
}

func (s *testUserService) Name() string { return "user" }

// testWidget is the canonical cleanup fixture: generator-style constructors
// flip Closed during unwind.
type testWidget struct {
	Dep    int
	Closed bool
}

// testTx stands in for a per-request resource.
type testTx struct {
	DB   *testDatabase
	Done bool
}

type testCircA struct{ B *testCircB }
type testCircB struct{ C *testCircC }
type testCircC struct{ A *testCircA }

func newTestLogger() *testLogger           { return &testLogger{Prefix: "app"} }
func newTestConfig() *testConfig           { return &testConfig{DSN: "postgres://localhost"} }
func newTestCircA(b *testCircB) *testCircA { return &testCircA{B: b} }
func newTestCircB(c *testCircC) *testCircB { return &testCircB{C: c} }
func newTestCircC(a *testCircA) *testCircC { return &testCircC{A: a} }

func newTestDatabase(cfg *testConfig, log *testLogger) *testDatabase {
	return &testDatabase{Config: cfg, Logger: log}
}

func newTestUserRepo(db *testDatabase, log *testLogger) *testUserRepo {
	return &testUserRepo{DB: db, Logger: log}
}

func newTestUserService(repo *testUserRepo, log *testLogger) *testUserService {
	return &testUserService{Repo: repo, Logger: log}
}

func newTestTx(db *testDatabase) (*testTx, func() error) {
	tx := &testTx{DB: db}
	return tx, func() error {
		tx.Done = true
		return nil
	}
}

// failCleanup always fails during unwind.
func failCleanup(name string) func() error {
	return func() error {
		return errors.New(name + " cleanup failed")
	}
}
