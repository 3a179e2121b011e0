package storage

import "github.com/eternalApril/moonstone/internal/dberr"

var errTypeMismatch = dberr.ErrTypeMismatch

// ErrIndexOutOfRange is returned by list writes at a missing position
var ErrIndexOutOfRange = dberr.New(dberr.InvalidArgument, "index out of range")
