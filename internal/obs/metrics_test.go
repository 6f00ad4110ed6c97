package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                   "/",
		"/metrics":                           "/metrics",
		"/v1/payroll/employees/alice":        "/v1/payroll/employees/:address",
		"/v1/payroll/employees/alice/settle": "/v1/payroll/employees/:address/settle",
		"/v1/payroll/employees/alice/extra":  "/v1/payroll/employees/alice/extra",
		"/v1/payroll/roster/4":               "/v1/payroll/roster/:index",
		"/v1/payroll/due?verbose=1":          "/v1/payroll/due",
		"/v1/payroll/trigger":                "/v1/payroll/trigger",
		"/v1/payroll/vault":                  "/v1/payroll/vault",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if got := ParseLevel("DEBUG"); got.String() != "debug" {
		t.Fatalf("ParseLevel(DEBUG) = %s", got)
	}
	if got := ParseLevel("nonsense"); got.String() != "info" {
		t.Fatalf("ParseLevel default = %s", got)
	}
}
