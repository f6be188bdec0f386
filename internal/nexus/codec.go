// Package nexus encodes which backup disks hold a copy of a content object.
//
// A nexus is written as a string of '0'/'1' characters where character i
// describes the disk whose nexus_index is i. The canonical form has no
// trailing '0' characters, so the empty string means "no copies".
//
// The string functions in this file are the ones registered as scalar
// functions inside the database. They work on strings of any length so that
// historical values remain readable after disks are deleted.
package nexus

import "strings"

// DiskIn reports whether the disk at index holds a copy.
// Indices past the end of the string are implicitly absent.
func DiskIn(nexus string, index int) bool {
	if index < 0 || index >= len(nexus) {
		return false
	}
	return nexus[index] == '1'
}

// WithDisk returns nexus with the bit for index set. The result is never
// shorter than the input.
func WithDisk(nexus string, index int) string {
	if index < 0 {
		return nexus
	}
	if index >= len(nexus) {
		var b strings.Builder
		b.Grow(index + 1)
		b.WriteString(nexus)
		for i := len(nexus); i < index; i++ {
			b.WriteByte('0')
		}
		b.WriteByte('1')
		return b.String()
	}
	if nexus[index] == '1' {
		return nexus
	}
	return nexus[:index] + "1" + nexus[index+1:]
}

// WithoutDisk returns nexus with the bit for index cleared and trailing
// zeros stripped. An index past the end is a no-op.
func WithoutDisk(nexus string, index int) string {
	if index < 0 || index >= len(nexus) {
		return nexus
	}
	out := nexus[:index] + "0" + nexus[index+1:]
	return strings.TrimRight(out, "0")
}

// Level returns the number of copies recorded in nexus.
func Level(nexus string) int {
	return strings.Count(nexus, "1")
}
