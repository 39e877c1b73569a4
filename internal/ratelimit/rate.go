package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Rate はウィンドウあたりの最大試行回数を表す。
type Rate struct {
	Limit  int
	Window time.Duration
}

// String は "6/1m0s" 形式の文字列を返す。
func (r Rate) String() string {
	return fmt.Sprintf("%d/%s", r.Limit, r.Window)
}

var units = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

// ParseRate は "6/minute" や "100/5minute"、"10 per hour" 形式のレート表記を解析する。
// 単位はsecond, minute, hour, day（複数形も可）。
func ParseRate(s string) (Rate, error) {
	raw := strings.ToLower(strings.TrimSpace(s))

	countPart, periodPart, ok := strings.Cut(raw, "/")
	if !ok {
		countPart, periodPart, ok = strings.Cut(raw, " per ")
	}
	if !ok {
		return Rate{}, fmt.Errorf("invalid rate %q: expected <count>/<period>", s)
	}

	limit, err := strconv.Atoi(strings.TrimSpace(countPart))
	if err != nil || limit <= 0 {
		return Rate{}, fmt.Errorf("invalid rate %q: count must be a positive integer", s)
	}

	periodPart = strings.TrimSpace(periodPart)
	i := 0
	for i < len(periodPart) && periodPart[i] >= '0' && periodPart[i] <= '9' {
		i++
	}
	multiplier := 1
	if i > 0 {
		multiplier, err = strconv.Atoi(periodPart[:i])
		if err != nil || multiplier <= 0 {
			return Rate{}, fmt.Errorf("invalid rate %q: period multiplier must be positive", s)
		}
	}

	unitName := strings.TrimSuffix(strings.TrimSpace(periodPart[i:]), "s")
	unit, ok := units[unitName]
	if !ok {
		return Rate{}, fmt.Errorf("invalid rate %q: unknown unit %q", s, periodPart[i:])
	}

	return Rate{Limit: limit, Window: time.Duration(multiplier) * unit}, nil
}

// UnmarshalText はParseRateの表記を受け付ける。環境変数からの読み込みに使用する。
func (r *Rate) UnmarshalText(text []byte) error {
	parsed, err := ParseRate(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
