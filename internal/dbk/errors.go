package dbk

import "errors"

var (
	// ErrInvariant means stored state contradicts itself: copies disagree
	// with the nexus, a disk index is taken twice, or one hash names two
	// different contents. The enclosing operation must stop.
	ErrInvariant = errors.New("invariant violated")

	// ErrDiskNotFound is returned when a disk name, uuid or path matches no
	// known disk.
	ErrDiskNotFound = errors.New("disk not found")

	// ErrNoDiskSelected is returned by operations that need a target disk.
	ErrNoDiskSelected = errors.New("no disk selected")

	// ErrDiskNotMounted is returned when a known disk's data path cannot be
	// found under any search root.
	ErrDiskNotMounted = errors.New("disk not mounted")

	// ErrDiskInUse is returned when deleting a disk that still holds objects.
	ErrDiskInUse = errors.New("disk still holds objects")

	// ErrTooManyDisks is returned when every nexus slot is taken.
	ErrTooManyDisks = errors.New("no free nexus index")

	// ErrIncompleteUpdate is returned by backup when some files have not
	// been hashed yet.
	ErrIncompleteUpdate = errors.New("update incomplete: some files have no hash")
)
