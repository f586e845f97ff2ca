package adapter

import (
	"errors"
	"math"
	"strconv"
)

var errNotInteger = errors.New("token count must be an integer")

// TokenCount is a token limit given as any JSON number with an integral
// value, so 1024, 1024.0 and 1e3 are all accepted. Range checks are left to
// validation.
type TokenCount int

// UnmarshalJSON implements json.Unmarshaler.
func (n *TokenCount) UnmarshalJSON(data []byte) error {
	// data is a single valid JSON value; only number literals parse.
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return errNotInteger
	}
	if math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return errNotInteger
	}
	if f >= math.MaxInt || f <= math.MinInt {
		return errNotInteger
	}
	*n = TokenCount(f)
	return nil
}

// Int returns the limit, zero when unset.
func (n *TokenCount) Int() int {
	if n == nil {
		return 0
	}
	return int(*n)
}
