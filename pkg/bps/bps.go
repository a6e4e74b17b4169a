// Package bps provides basis-point arithmetic over integer money amounts.
// Intermediate products run through big.Int so large principals cannot
// overflow int64 before the final division.
package bps

import (
	"math/big"
	"time"
)

// Denominator is the number of basis points in 100%.
const Denominator = 10_000

const secondsPerYear = 365 * 24 * 60 * 60

// Apply returns amount * b / 10_000, truncating toward zero.
func Apply(amount int64, b uint64) int64 {
	if amount <= 0 || b == 0 {
		return 0
	}
	v := new(big.Int).SetInt64(amount)
	v.Mul(v, new(big.Int).SetUint64(b))
	v.Quo(v, big.NewInt(Denominator))
	return v.Int64()
}

// Ratio returns part/whole expressed in basis points, truncating toward
// zero. A zero whole yields zero.
func Ratio(part, whole int64) uint64 {
	if part <= 0 || whole <= 0 {
		return 0
	}
	v := new(big.Int).SetInt64(part)
	v.Mul(v, big.NewInt(Denominator))
	v.Quo(v, new(big.Int).SetInt64(whole))
	return v.Uint64()
}

// SimpleInterest computes principal * aprBps * elapsed on an actual/365
// seconds basis. Negative elapsed durations accrue nothing.
func SimpleInterest(principal int64, aprBps uint64, elapsed time.Duration) int64 {
	secs := int64(elapsed / time.Second)
	if principal <= 0 || aprBps == 0 || secs <= 0 {
		return 0
	}
	v := new(big.Int).SetInt64(principal)
	v.Mul(v, new(big.Int).SetUint64(aprBps))
	v.Mul(v, big.NewInt(secs))
	v.Quo(v, big.NewInt(Denominator*secondsPerYear))
	return v.Int64()
}
