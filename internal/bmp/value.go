package bmp

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseValue parses text typed for fd. Decimal and 0x-prefixed hex are
// accepted; the result is range checked against the field width.
func ParseValue(fd Field, text string) (int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("empty value for %s", fd.Name)
	}
	var (
		v   int64
		err error
	)
	if fd.Signed {
		v, err = strconv.ParseInt(text, 0, 64)
	} else {
		var u uint64
		u, err = strconv.ParseUint(text, 0, 64)
		if err == nil && u > math.MaxUint32 {
			return 0, fmt.Errorf("%w: %s does not fit %s", ErrValueRange, text, fd.Name)
		}
		v = int64(u)
	}
	if err != nil {
		return 0, fmt.Errorf("parse %s value %q: %w", fd.Name, text, err)
	}
	if err := CheckRange(fd, v); err != nil {
		return 0, err
	}
	return v, nil
}
