// Package bundle packs text blocks into transport-sized messages.
package bundle

import (
	"strings"
	"unicode/utf8"
)

// Separator joins blocks inside one bundle.
const Separator = "\n"

// Len is the length measure used against the transport limit.
func Len(s string) int {
	return utf8.RuneCountInString(s)
}

// Pack greedily groups blocks, in order, into bundles no longer than max.
// Blocks are never split: a block that is itself longer than max is emitted
// as a bundle of its own. Empty blocks are skipped.
func Pack(blocks []string, max int) []string {
	var (
		bundles []string
		cur     strings.Builder
		curLen  int
	)
	flush := func() {
		if curLen > 0 {
			bundles = append(bundles, cur.String())
		}
		cur.Reset()
		curLen = 0
	}

	for _, block := range blocks {
		n := Len(block)
		if n == 0 {
			continue
		}
		if curLen == 0 {
			cur.WriteString(block)
			curLen = n
			continue
		}
		if curLen+len(Separator)+n > max {
			flush()
			cur.WriteString(block)
			curLen = n
			continue
		}
		cur.WriteString(Separator)
		cur.WriteString(block)
		curLen += len(Separator) + n
	}
	flush()
	return bundles
}
