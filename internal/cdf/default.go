package cdf

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	year = 365 * 24 * time.Hour

	defaultMaxSigma = 200
)

var (
	defaultTable     *Table
	defaultTableOnce sync.Once
)

// Default returns the published table: one row per whole minute from 1 to 60
// minutes, sigma 0..200 in steps of 5.
func Default() *Table {
	defaultTableOnce.Do(func() {
		durations := make([]time.Duration, 0, 60)
		for i := time.Duration(1); i <= 60; i++ {
			durations = append(durations, i*time.Minute)
		}
		defaultTable = build(durations, defaultMaxSigma)
	})
	return defaultTable
}

func build(durations []time.Duration, maxSigma uint64) *Table {
	dist := distuv.Normal{Mu: 0, Sigma: 1}
	rows := make(map[uint64][]uint32, len(durations))
	for _, d := range durations {
		values := make([]uint32, 0, maxSigma/SigmaStep+1)
		for s := uint64(0); s <= maxSigma; s += SigmaStep {
			values = append(values, value(dist, s, d))
		}
		rows[uint64(d/time.Second)] = values
	}
	return &Table{rows: rows}
}

func value(dist distuv.Normal, sigma uint64, d time.Duration) uint32 {
	x := float64(sigma) * math.Sqrt(float64(d)/float64(year)) / 2 / 100
	return uint32(Amplifier * (2*dist.CDF(x) - 1))
}
