package message

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/fxamacker/cbor/v2"
)

// ID identifies a call and correlates its response. It is either a string or an
// integer in [math.MinInt64, math.MaxUint64]; a request without an ID is a notification.
//
// Numbers are kept in canonical decimal form, so equal ids compare equal with ==
// whichever constructor built them.
type ID struct {
	value string
	isStr bool
}

// StringID returns a string identifier.
func StringID(s string) ID { return ID{value: s, isStr: true} }

// NumberID returns a numeric identifier.
func NumberID(n int64) ID { return ID{value: strconv.FormatInt(n, 10)} }

// UintID returns a numeric identifier, including values above math.MaxInt64.
func UintID(n uint64) ID { return ID{value: strconv.FormatUint(n, 10)} }

// IsString reports whether the identifier holds a string.
func (id ID) IsString() bool { return id.isStr }

// Int64 returns the numeric value and whether the identifier is a number that fits.
func (id ID) Int64() (int64, bool) {
	if id.isStr {
		return 0, false
	}
	v, err := strconv.ParseInt(id.digits(), 10, 64)
	return v, err == nil
}

// Uint64 returns the numeric value and whether the identifier is a non-negative number.
func (id ID) Uint64() (uint64, bool) {
	if id.isStr {
		return 0, false
	}
	v, err := strconv.ParseUint(id.digits(), 10, 64)
	return v, err == nil
}

func (id ID) digits() string {
	if id.value == "" {
		return "0"
	}
	return id.value
}

// String formats the identifier for logs. String IDs are quoted.
func (id ID) String() string {
	if id.isStr {
		return strconv.Quote(id.value)
	}
	return id.digits()
}

// parseNumber canonicalizes the decimal text of a numeric id.
func parseNumber(s string) (ID, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return NumberID(v), nil
	}
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		return UintID(v), nil
	}
	return ID{}, fmt.Errorf("message: id %s is not an integer in range", s)
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id.isStr {
		return json.Marshal(id.value)
	}
	return []byte(id.digits()), nil
}

func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("message: id must be a string or a number: %w", err)
	}
	v, err := parseNumber(n.String())
	if err != nil {
		return err
	}
	*id = v
	return nil
}

func (id ID) MarshalCBOR() ([]byte, error) {
	if id.isStr {
		return cbor.Marshal(id.value)
	}
	if v, ok := id.Int64(); ok {
		return cbor.Marshal(v)
	}
	v, _ := id.Uint64()
	return cbor.Marshal(v)
}

func (id *ID) UnmarshalCBOR(data []byte) error {
	var v any
	if err := cbor.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case string:
		*id = StringID(t)
	case uint64:
		if t <= math.MaxInt64 {
			*id = NumberID(int64(t))
		} else {
			*id = UintID(t)
		}
	case int64:
		*id = NumberID(t)
	default:
		return fmt.Errorf("message: id must be a string or an integer, got %T", v)
	}
	return nil
}
