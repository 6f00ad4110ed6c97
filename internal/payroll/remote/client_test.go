package remote

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"payvault.org/internal/auth"
	"payvault.org/internal/httpapi"
	"payvault.org/internal/payroll"
	"payvault.org/internal/stream"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	t.Setenv("PAYVAULT_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()

	st := stream.New()
	svc := payroll.NewInMemory(payroll.WithNotifier(st))
	api := httpapi.New(httpapi.ReadyProbe{}, "test", svc, st)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestClientRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	token, err := MintToken(ctx, srv.URL, "employer-demo", []string{"employer"})
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}

	c, err := New(srv.URL, WithToken(token), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	balance, err := c.Deposit(ctx, 100)
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if balance != 100 {
		t.Fatalf("unexpected balance: %d", balance)
	}

	emp, err := c.AddEmployee(ctx, "emp-a", 30, 0)
	if err != nil {
		t.Fatalf("AddEmployee: %v", err)
	}
	if !emp.Active || emp.Salary != 30 {
		t.Fatalf("unexpected employee: %+v", emp)
	}

	p, err := c.SettleOne(ctx, "emp-a")
	if err != nil {
		t.Fatalf("SettleOne: %v", err)
	}
	if p.Amount != 30 || p.Balance != 70 {
		t.Fatalf("unexpected payment: %+v", p)
	}

	due, err := c.AnyDue(ctx)
	if err != nil {
		t.Fatalf("AnyDue: %v", err)
	}
	if !due {
		t.Fatalf("expected zero-interval employee to be due again")
	}

	pass, err := c.Trigger(ctx)
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if pass.Balance != 40 || len(pass.Payments) != 1 {
		t.Fatalf("unexpected pass: %+v", pass)
	}

	n, err := c.RosterLen(ctx)
	if err != nil || n != 1 {
		t.Fatalf("RosterLen: n=%d err=%v", n, err)
	}
	addr, err := c.AddressAt(ctx, 0)
	if err != nil || addr != "emp-a" {
		t.Fatalf("AddressAt: addr=%q err=%v", addr, err)
	}
}

func TestClientMapsErrorCodes(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	token, err := MintToken(ctx, srv.URL, "employer-demo", []string{"employer"})
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}
	c, err := New(srv.URL, WithToken(token), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.GetEmployee(ctx, "ghost"); !errors.Is(err, payroll.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := c.Deposit(ctx, 0); !errors.Is(err, payroll.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := c.Trigger(ctx); !errors.Is(err, payroll.ErrNothingDue) {
		t.Fatalf("expected ErrNothingDue, got %v", err)
	}
	if _, err := c.AddressAt(ctx, 7); !errors.Is(err, payroll.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty roster, got %v", err)
	}
}

func TestClientWithoutTokenIsRejected(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	c, err := New(srv.URL, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = c.Deposit(ctx, 100)
	if err == nil {
		t.Fatalf("expected an authorization error")
	}
	if !strings.Contains(err.Error(), "unauthorized") {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}
