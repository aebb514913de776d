package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxClientOrderIDLength is the longest client order ID the venues accept
const MaxClientOrderIDLength = 36

// GenerateClientOrderID builds a structured client order ID:
// [STRATEGY3]-[DDMMM]-[8CHAR] (e.g. "SNI-15JAN-a3f7c2e9"). The random tail
// comes from a UUID so restarts cannot collide.
func GenerateClientOrderID(strategyName string) string {
	prefix := strings.ToUpper(strategyName)
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	if prefix == "" {
		prefix = "ORD"
	}

	date := strings.ToUpper(time.Now().UTC().Format("02Jan"))
	tail := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]

	id := fmt.Sprintf("%s-%s-%s", prefix, date, tail)
	if len(id) > MaxClientOrderIDLength {
		id = id[:MaxClientOrderIDLength]
	}
	return id
}

// StrategyFromClientOrderID recovers the strategy prefix from a generated ID
func StrategyFromClientOrderID(id string) string {
	parts := strings.SplitN(id, "-", 2)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}
