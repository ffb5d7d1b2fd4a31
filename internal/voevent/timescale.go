package voevent

import (
	"errors"
	"time"
)

// TT - TAI, fixed by definition.
const ttMinusTAI = 32184 * time.Millisecond

var ErrBeforeLeapTable = errors.New("voevent: timestamp predates the leap second table")

type leapEntry struct {
	since  time.Time
	offset time.Duration // TAI - UTC
}

func utcDate(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// IERS Bulletin C, TAI-UTC since the 1972 reform.
var leapSeconds = []leapEntry{
	{utcDate(1972, time.January), 10 * time.Second},
	{utcDate(1972, time.July), 11 * time.Second},
	{utcDate(1973, time.January), 12 * time.Second},
	{utcDate(1974, time.January), 13 * time.Second},
	{utcDate(1975, time.January), 14 * time.Second},
	{utcDate(1976, time.January), 15 * time.Second},
	{utcDate(1977, time.January), 16 * time.Second},
	{utcDate(1978, time.January), 17 * time.Second},
	{utcDate(1979, time.January), 18 * time.Second},
	{utcDate(1980, time.January), 19 * time.Second},
	{utcDate(1981, time.July), 20 * time.Second},
	{utcDate(1982, time.July), 21 * time.Second},
	{utcDate(1983, time.July), 22 * time.Second},
	{utcDate(1985, time.July), 23 * time.Second},
	{utcDate(1988, time.January), 24 * time.Second},
	{utcDate(1990, time.January), 25 * time.Second},
	{utcDate(1991, time.January), 26 * time.Second},
	{utcDate(1992, time.July), 27 * time.Second},
	{utcDate(1993, time.July), 28 * time.Second},
	{utcDate(1994, time.July), 29 * time.Second},
	{utcDate(1996, time.January), 30 * time.Second},
	{utcDate(1997, time.July), 31 * time.Second},
	{utcDate(1999, time.January), 32 * time.Second},
	{utcDate(2006, time.January), 33 * time.Second},
	{utcDate(2009, time.January), 34 * time.Second},
	{utcDate(2012, time.July), 35 * time.Second},
	{utcDate(2015, time.July), 36 * time.Second},
	{utcDate(2017, time.January), 37 * time.Second},
}

// taiMinusUTC returns TAI-UTC in force at t.
func taiMinusUTC(t time.Time) (time.Duration, error) {
	if t.Before(leapSeconds[0].since) {
		return 0, ErrBeforeLeapTable
	}
	offset := leapSeconds[0].offset
	for _, e := range leapSeconds[1:] {
		if t.Before(e.since) {
			break
		}
		offset = e.offset
	}
	return offset, nil
}

// TDBToUTC converts a barycentric dynamical time reading to UTC. TDB and TT
// differ by under 2ms and are treated as equal.
func TDBToUTC(tdb time.Time) (time.Time, error) {
	tai := tdb.Add(-ttMinusTAI)
	offset, err := taiMinusUTC(tai)
	if err != nil {
		return time.Time{}, err
	}
	utc := tai.Add(-offset)
	// The first lookup used TAI; re-check on the UTC side of a boundary.
	if again, err := taiMinusUTC(utc); err == nil && again != offset {
		utc = tai.Add(-again)
	}
	return utc.UTC(), nil
}
