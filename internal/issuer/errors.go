/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package issuer

import "errors"

// Kind classifies why an issuance failed, independent of transport.
type Kind string

const (
	KindInput      Kind = "input"
	KindUpstream   Kind = "upstream"
	KindValidation Kind = "validation"
	KindDuplicate  Kind = "duplicate_subject"
	KindEncoding   Kind = "encoding"
	KindSigning    Kind = "signing"
)

// Error is returned by every failed issuance. Message is safe to show to
// the caller; Err keeps the cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches by kind, so errors.Is(err, ErrDuplicateSubject) works for
// any duplicate rejection.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is.
var (
	ErrInput            = &Error{Kind: KindInput}
	ErrUpstream         = &Error{Kind: KindUpstream}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrDuplicateSubject = &Error{Kind: KindDuplicate}
	ErrEncoding         = &Error{Kind: KindEncoding}
	ErrSigning          = &Error{Kind: KindSigning}
)

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
