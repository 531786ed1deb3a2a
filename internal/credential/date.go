/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package credential

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// epochOffset moves the Unix epoch back to 1900-01-01 so that
	// birthdates before 1970 stay non-negative.
	epochOffset = 2208988800

	minYear = 1900
	maxYear = 2099

	dateLayout = "2006-01-02"
)

// EncodeDate converts a YYYY-MM-DD date into seconds since 1900-01-01 UTC.
func EncodeDate(date string) (int64, error) {
	parts := strings.Split(date, "-")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDateFormat, date)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDateFormat, date)
	}
	if year < minYear || year > maxYear {
		return 0, fmt.Errorf("%w: %q", ErrDateOutOfRange, date)
	}

	t, err := time.ParseInLocation(dateLayout, date, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrDateParse, date)
	}
	return t.Unix() + epochOffset, nil
}

// EncodeTime converts an instant into the same epoch, truncated to whole seconds.
func EncodeTime(t time.Time) int64 {
	return t.Unix() + epochOffset
}

// FormatDate renders t as the YYYY-MM-DD form accepted by EncodeDate.
func FormatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}
