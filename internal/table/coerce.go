package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// excelEpoch is day zero of the 1900 spreadsheet date system.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// maxExcelSerial is 9999-12-31.
const maxExcelSerial = 2958465

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"02-01-2006",
	"02/01/2006",
	"2-1-2006",
	"20060102",
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Coerce converts v to the Go representation of type to. Conversion is
// non-strict: anything that cannot be represented yields nil.
func Coerce(v any, to Type) any {
	if v == nil {
		return nil
	}
	switch to {
	case String:
		return toString(v)
	case Int64:
		return toInt64(v)
	case Float64:
		return toFloat64(v)
	case Date:
		return toDate(v)
	case Timestamp:
		return toTimestamp(v)
	}
	return nil
}

func toString(v any) any {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	case civil.Date:
		return x.String()
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func toInt64(v any) any {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float64:
		return truncFloat(x)
	case float32:
		return truncFloat(float64(x))
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if f, ok := parseNumber(s); ok {
			return truncFloat(f)
		}
	}
	return nil
}

func truncFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt64 {
		return nil
	}
	return int64(math.Trunc(f))
}

func toFloat64(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case float32:
		return float64(x)
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case string:
		if f, ok := parseNumber(x); ok {
			return f
		}
	}
	return nil
}

// parseNumber accepts plain numbers plus the Dutch "1.234,56" notation.
func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		return 0, false
	}
	comma, dot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case comma >= 0 && dot >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		s = strings.Replace(s, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toDate(v any) any {
	switch x := v.(type) {
	case civil.Date:
		if !x.IsValid() {
			return nil
		}
		return x
	case time.Time:
		return civil.DateOf(x.UTC())
	case float64:
		return serialDate(x)
	case int64:
		return serialDate(float64(x))
	case int:
		return serialDate(float64(x))
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return civil.DateOf(t)
			}
		}
		if f, ok := parseNumber(s); ok {
			return serialDate(f)
		}
	}
	return nil
}

func serialDate(f float64) any {
	ts := serialTime(f)
	if ts == nil {
		return nil
	}
	return civil.DateOf(ts.(time.Time))
}

func serialTime(f float64) any {
	if math.IsNaN(f) || f <= 0 || f > maxExcelSerial {
		return nil
	}
	days := math.Floor(f)
	frac := f - days
	t := excelEpoch.AddDate(0, 0, int(days))
	return t.Add(time.Duration(math.Round(frac*86400)) * time.Second)
}

func toTimestamp(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UTC()
	case civil.Date:
		if !x.IsValid() {
			return nil
		}
		return x.In(time.UTC)
	case float64:
		return serialTime(x)
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
		if d, ok := toDate(s).(civil.Date); ok {
			return d.In(time.UTC)
		}
	}
	return nil
}

// supertype picks the column type able to hold values of both a and b.
func supertype(a, b Type) Type {
	switch {
	case a == b:
		return a
	case (a == Int64 && b == Float64) || (a == Float64 && b == Int64):
		return Float64
	case (a == Date && b == Timestamp) || (a == Timestamp && b == Date):
		return Timestamp
	default:
		return String
	}
}

// compareValues orders two non-nil values of compatible types.
func compareValues(a, b any) int {
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case int64:
		if y, ok := b.(int64); ok {
			return cmpOrdered(x, y)
		}
		if y, ok := b.(float64); ok {
			return cmpOrdered(float64(x), y)
		}
	case float64:
		if y, ok := toFloat64(b).(float64); ok {
			return cmpOrdered(x, y)
		}
	case civil.Date:
		if y, ok := b.(civil.Date); ok {
			switch {
			case x.Before(y):
				return -1
			case x.After(y):
				return 1
			}
			return 0
		}
	case time.Time:
		if y, ok := toTimestamp(b).(time.Time); ok {
			return x.Compare(y)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
