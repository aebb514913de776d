package orders

import (
	"regexp"
	"testing"
)

var clientIDPattern = regexp.MustCompile(`^[A-Z]{1,3}-\d{2}[A-Z]{3}-[0-9a-f]{8}$`)

func TestGenerateClientOrderID(t *testing.T) {
	id := GenerateClientOrderID("SNIPER")
	if !clientIDPattern.MatchString(id) {
		t.Errorf("id %q does not match the [STRATEGY3]-[DDMMM]-[8CHAR] shape", id)
	}
	if len(id) > MaxClientOrderIDLength {
		t.Errorf("id %q longer than %d", id, MaxClientOrderIDLength)
	}
	if StrategyFromClientOrderID(id) != "SNI" {
		t.Errorf("strategy prefix of %q = %q, want SNI", id, StrategyFromClientOrderID(id))
	}
}

func TestGenerateClientOrderIDEmptyStrategy(t *testing.T) {
	id := GenerateClientOrderID("")
	if StrategyFromClientOrderID(id) != "ORD" {
		t.Errorf("empty strategy id %q should carry the ORD prefix", id)
	}
}

func TestGenerateClientOrderIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateClientOrderID("SNIPER")
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
