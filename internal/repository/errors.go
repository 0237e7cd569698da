// Package repository holds the persistence layer for slots, swap requests,
// users and refresh tokens.  The sentinel errors below are shared by every
// store implementation so that the service layer can classify failures
// with errors.Is regardless of the backing database.
package repository

import "errors"

// ErrNotFound is returned when a row with the requested id does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional write lost a race (the row's
// version moved on, or the database aborted the transaction because of a
// deadlock, lock timeout or serialization failure).  Nothing was written;
// the whole command may be retried.
var ErrConflict = errors.New("transaction conflict")

// ErrInvalidRange is returned when a slot would be stored with a start time
// that is not strictly before its end time.
var ErrInvalidRange = errors.New("start time must be before end time")

// ErrEmailExists is returned when registering an email that is taken.
var ErrEmailExists = errors.New("email already exists")
