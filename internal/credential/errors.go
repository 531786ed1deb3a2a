/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package credential

import "errors"

var (
	ErrInvalidDateFormat     = errors.New("date must be formatted as YYYY-MM-DD")
	ErrDateOutOfRange        = errors.New("date year must be within [1900, 2099]")
	ErrDateParse             = errors.New("date is not a valid calendar date")
	ErrHashArity             = errors.New("invalid number of hash inputs")
	ErrFieldOverflow         = errors.New("value is not inside the finite field")
	ErrUnknownFieldReference = errors.New("unknown field reference")
	ErrLeafArityMismatch     = errors.New("leaf arity mismatch")
	ErrDuplicateField        = errors.New("field referenced twice in layout")
	ErrRequiredField         = errors.New("layout is missing a required field")
)
