// Package cachekey generates and parses staging cache entry names.
//
// Entry names have the form TIMESTAMP-PID-COUNTER-RAND, where TIMESTAMP is the
// creation time in unix seconds. Only TIMESTAMP carries meaning when an entry
// is read back; the remaining segments exist to keep names unique.
package cachekey

import (
	"fmt"
	"math/rand/v2"
	"os"
	"regexp"
	"strconv"
	"sync/atomic"
	"time"
)

var (
	counter atomic.Uint32
	pattern = regexp.MustCompile(`^(\d+)-\d+-\d+(?:-\d+)?`)
)

// New returns a fresh cache id stamped with now.
func New(now time.Time) string {
	n := counter.Add(1) % 10000
	return fmt.Sprintf("%d-%d-%04d-%04d", now.Unix(), os.Getpid(), n, rand.IntN(10000))
}

// Parse extracts the creation time from an entry name.
//
// It reports false when the name does not start with the key pattern or when
// the timestamp is not a positive integer that fits in an int64.
func Parse(name string) (time.Time, bool) {
	m := pattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}

	secs, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}, false
	}

	return time.Unix(secs, 0), true
}
