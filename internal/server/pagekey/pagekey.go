// Package pagekey parses and formats the page naming convention scanners use
// to pair the two sides of a sheet: "<prefix>_<digits>". The digit run keeps
// its width when a neighbour is computed; an odd number marks a front page.
package pagekey

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/sheetscan/internal/common"
)

// Key is a parsed page name.
type Key struct {
	// Prefix is everything before the digit run, including the trailing
	// underscore. It is empty for bare numeric names.
	Prefix string
	Number int
	Width  int
}

// Stem drops everything from the first dot, so "sheet_0001.jpg" and
// "sheet_0001.tar.gz" both yield "sheet_0001".
func Stem(filename string) string {
	if i := strings.IndexByte(filename, '.'); i >= 0 {
		return filename[:i]
	}
	return filename
}

// Parse splits name into its prefix and trailing number.
func Parse(name string) (Key, error) {
	digits := name
	prefix := ""
	if i := strings.LastIndexByte(name, '_'); i >= 0 {
		prefix, digits = name[:i+1], name[i+1:]
	}

	if digits == "" {
		return Key{}, fmt.Errorf("%w: %q has no trailing number", common.ErrInvalidPageName, name)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return Key{}, fmt.Errorf("%w: %q has no trailing number", common.ErrInvalidPageName, name)
		}
	}

	n, err := strconv.Atoi(digits)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %q: %v", common.ErrInvalidPageName, name, err)
	}

	return Key{Prefix: prefix, Number: n, Width: len(digits)}, nil
}

// String formats the key back into a page name.
func (k Key) String() string {
	return k.Prefix + fmt.Sprintf("%0*d", k.Width, k.Number)
}

// Suffix is the zero-padded digit run alone.
func (k Key) Suffix() string {
	return fmt.Sprintf("%0*d", k.Width, k.Number)
}

// IsFront reports whether the page is the front (odd) side of its sheet.
func (k Key) IsFront() bool {
	return k.Number%2 == 1
}

// Neighbor returns the key delta pages away, keeping the digit width.
func (k Key) Neighbor(delta int) (Key, error) {
	n := k.Number + delta
	if n < 0 {
		return Key{}, fmt.Errorf("%w: %s%+d is negative", common.ErrInvalidPageName, k, delta)
	}
	return Key{Prefix: k.Prefix, Number: n, Width: k.Width}, nil
}

// SiblingDelta is +1 for a front page and -1 for a back page.
func (k Key) SiblingDelta() int {
	if k.IsFront() {
		return 1
	}
	return -1
}

// Sibling returns the other side of the same sheet.
func (k Key) Sibling() (Key, error) {
	return k.Neighbor(k.SiblingDelta())
}

// SiblingName reproduces name with its trailing number shifted by delta.
func SiblingName(name string, delta int) (string, error) {
	k, err := Parse(name)
	if err != nil {
		return "", err
	}
	n, err := k.Neighbor(delta)
	if err != nil {
		return "", err
	}
	return n.String(), nil
}
