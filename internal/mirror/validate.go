package mirror

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	MinScore = -127
	MaxScore = 127
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// ValidTxHash reports whether h is 0x followed by 64 hex characters.
func ValidTxHash(h string) bool {
	return txHashPattern.MatchString(h)
}

// normalizeAddress lowercases a well-formed hex address.
func normalizeAddress(addr string) (string, bool) {
	if !common.IsHexAddress(addr) {
		return "", false
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), true
}

// parseScore accepts only JSON numbers holding an integer in [MinScore, MaxScore].
func parseScore(v any) (int, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case int:
		f = float64(n)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.Trunc(f) != f || f < MinScore || f > MaxScore {
		return 0, false
	}
	return int(f), true
}
