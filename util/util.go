package util

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

type Integer interface {
	int | uint16 | uint32 | uint64 | int16 | int32 | int64
}

var prn = message.NewPrinter(language.English)

// Th makes string representation of the integer with thousands separated by '_'
func Th[T Integer](v T) string {
	return strings.Replace(prn.Sprintf("%d", v), ",", "_", -1)
}

// Reverse reverses slice in place
func Reverse[T any](slice []T) []T {
	for i, j := 0, len(slice)-1; i < j; i, j = i+1, j-1 {
		slice[i], slice[j] = slice[j], slice[i]
	}
	return slice
}

// Find returns index of the first element equal to el or -1
func Find[T comparable](lst []T, el T) int {
	for i, e := range lst {
		if e == el {
			return i
		}
	}
	return -1
}

// RangeReverse iterates slice from the end
func RangeReverse[T any](slice []T, fun func(i int, elem T) bool) {
	for i := len(slice) - 1; i >= 0; i-- {
		if !fun(i, slice[i]) {
			return
		}
	}
}
