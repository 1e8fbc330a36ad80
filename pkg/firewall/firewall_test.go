package firewall

import (
	"errors"
	"strings"
	"testing"

	"github.com/Trindade2023/trindade-protocol/pkg/policy"
)

func newFirewall(t *testing.T) *InputFirewall {
	t.Helper()
	p, err := policy.Default()
	if err != nil {
		t.Fatalf("load policy: %v", err)
	}
	return New(p.Firewall)
}

func TestInputFirewall_Rejects(t *testing.T) {
	fw := newFirewall(t)

	rejected := []string{
		"",
		"   ",
		"hi",
		"<SCRIPT>alert(1)</script>",
		"please drop table users",
		"Insert Into accounts values (1)",
		"select * -- comment",
		strings.Repeat("a", 20001),
		"bad \xff utf8 input",
	}
	for _, text := range rejected {
		err := fw.Validate(text)
		if err == nil {
			t.Errorf("expected rejection for %q", text)
			continue
		}
		if !errors.Is(err, ErrInputRejected) {
			t.Errorf("expected ErrInputRejected for %q, got %v", text, err)
		}
	}
}

func TestInputFirewall_Accepts(t *testing.T) {
	fw := newFirewall(t)

	accepted := []string{
		"abc",
		"Design a simple support bracket for a bookshelf",
		"Design emergency shutdown for fusion reactor core. Nuclear meltdown possible.",
		"Prove that the square root of 2 is irrational",
	}
	for _, text := range accepted {
		if err := fw.Validate(text); err != nil {
			t.Errorf("unexpected rejection for %q: %v", text, err)
		}
	}
}
