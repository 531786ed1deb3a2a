package domain

import "errors"

// ErrAlreadyExists is returned by stores when a unique key is inserted twice.
var ErrAlreadyExists = errors.New("item already exists")
