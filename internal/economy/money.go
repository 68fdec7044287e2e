package economy

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	MicrosPerCoin = int64(1_000_000)

	DefaultDailyRewardMicros   = int64(100) * MicrosPerCoin
	DefaultRichThresholdMicros = int64(30_000) * MicrosPerCoin
)

var nameRE = regexp.MustCompile(`^[a-z0-9_]{1,32}$`)

func CoinsToMicros(v float64) int64 {
	return int64(math.Round(v * float64(MicrosPerCoin)))
}

func MicrosToCoins(v int64) float64 {
	return float64(v) / float64(MicrosPerCoin)
}

// FormatMicros renders micros as coins with two decimals and thousands
// separators, e.g. 30,000.00.
func FormatMicros(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole := v / MicrosPerCoin
	frac := (v % MicrosPerCoin) / 10_000
	return fmt.Sprintf("%s%s.%02d", sign, comma(whole), frac)
}

func comma(v int64) string {
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		b.WriteByte(',')
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

// NormalizeName lowercases and trims an item, job or game name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func validateName(kind, name string) error {
	if !nameRE.MatchString(name) {
		return fmt.Errorf("%w: %s name %q", ErrInvalidAmount, kind, name)
	}
	return nil
}

func requirePositive(what string, v int64) error {
	if v <= 0 {
		return fmt.Errorf("%w: %s must be > 0", ErrInvalidAmount, what)
	}
	return nil
}

// requireRoom rejects an amount that would push have past the int64 range.
func requireRoom(what string, have, add int64) error {
	if add > 0 && have > math.MaxInt64-add {
		return fmt.Errorf("%w: %s would exceed the largest representable value", ErrInvalidAmount, what)
	}
	return nil
}

// scaleMicros returns round(v * factor) and reports whether it fits in int64.
func scaleMicros(v int64, factor float64) (int64, bool) {
	out := math.Round(float64(v) * factor)
	if math.IsNaN(out) || out > math.MaxInt64 || out < math.MinInt64 {
		return 0, false
	}
	return int64(out), true
}

// mulMicros multiplies a unit price by a quantity, refusing on overflow.
func mulMicros(priceMicros, qty int64) (int64, error) {
	if priceMicros < 0 || qty < 0 {
		return 0, fmt.Errorf("%w: negative operand", ErrInvalidAmount)
	}
	if qty != 0 && priceMicros > math.MaxInt64/qty {
		return 0, fmt.Errorf("%w: cost overflows", ErrInvalidAmount)
	}
	return priceMicros * qty, nil
}
