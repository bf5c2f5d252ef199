package eval

import (
	"errors"
	"strings"
	"testing"
)

func TestEvaluate(t *testing.T) {
	cases := []struct {
		expr string
		want float64
	}{
		{"2+2", 4},
		{"2 + 3 * 4", 14},
		{"(2+3)*4", 20},
		{"10-4-3", 3},
		{"-5+2", -3},
		{"--5", 5},
		{"-(2+3)", -5},
		{"2/4", 0.5},
		{"1.5*2", 3},
		{".5+.5", 1},
		{"100/10/2", 5},
		{"  7  ", 7},
		{"2*(3+(4-1))", 12},
	}

	e := &Evaluator{}
	for _, tc := range cases {
		got, err := e.Evaluate(tc.expr)
		if err != nil {
			t.Fatalf("Evaluate(%q) returned error: %v", tc.expr, err)
		}
		if got != tc.want {
			t.Fatalf("Evaluate(%q) = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestEvaluateErrors(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"2+",
		"(2",
		"2)",
		"a+1",
		"2+x",
		"1..2",
		"2 3",
		"1+.",
		"()",
		"foo(1)",
	}

	e := &Evaluator{}
	for _, expr := range cases {
		if _, err := e.Evaluate(expr); err == nil {
			t.Fatalf("Evaluate(%q) succeeded, want error", expr)
		}
	}
}

func TestEvaluateDivisionByZero(t *testing.T) {
	e := &Evaluator{}
	_, err := e.Evaluate("1/0")
	if !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected ErrDivisionByZero, got %v", err)
	}

	_, err = e.Evaluate("5/(3-3)")
	if !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected ErrDivisionByZero for 5/(3-3), got %v", err)
	}
}

func TestEvaluateLengthBound(t *testing.T) {
	e := &Evaluator{MaxLen: 10}
	if _, err := e.Evaluate("1+1+1+1+1+1+1"); err == nil {
		t.Fatalf("expected length error")
	}
	if _, err := e.Evaluate("1+1"); err != nil {
		t.Fatalf("short expression rejected: %v", err)
	}
}

func TestEvaluateDepthBound(t *testing.T) {
	e := &Evaluator{MaxDepth: 8}

	deep := strings.Repeat("(", 20) + "1" + strings.Repeat(")", 20)
	if _, err := e.Evaluate(deep); err == nil {
		t.Fatalf("expected depth error for %q", deep)
	}

	// Unary minus chains count against the same bound.
	if _, err := e.Evaluate(strings.Repeat("-", 20) + "1"); err == nil {
		t.Fatalf("expected depth error for long unary chain")
	}

	if _, err := e.Evaluate("((1+2))"); err != nil {
		t.Fatalf("shallow expression rejected: %v", err)
	}
}

func TestEvaluateOverflow(t *testing.T) {
	e := &Evaluator{MaxLen: 4096}
	expr := "9" + strings.Repeat("0", 300) + "*9" + strings.Repeat("0", 300)
	if _, err := e.Evaluate(expr); err == nil {
		t.Fatalf("expected out-of-range error")
	}
}

func TestFormatResult(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{4, "4"},
		{0.5, "0.5"},
		{-3, "-3"},
		{2.25, "2.25"},
		{0, "0"},
	}
	for _, tc := range cases {
		if got := FormatResult(tc.in); got != tc.want {
			t.Fatalf("FormatResult(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
