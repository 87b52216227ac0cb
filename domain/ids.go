package domain

import (
	"math/rand/v2"
	"strconv"
	"time"
)

// ID prefixes used for generated identifiers.
const (
	PrefixChecklist = "id"
	PrefixKanban    = "task"
	PrefixRoadmap   = "rm"
	PrefixResource  = "res"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewID returns "<prefix>-<unix millis>-<7 base36 chars>".
func NewID(prefix string) string {
	return newIDAt(prefix, time.Now())
}

func newIDAt(prefix string, now time.Time) string {
	suffix := make([]byte, 7)
	for i := range suffix {
		suffix[i] = idAlphabet[rand.IntN(len(idAlphabet))]
	}
	return prefix + "-" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + string(suffix)
}
