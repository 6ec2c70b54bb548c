// Package utils
package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// randSuffix returns n random base36 characters. With n=6 the collision
// probability within one millisecond stays below 2^-30.
func randSuffix(n int) string {
	buf := make([]byte, n)
	max := big.NewInt(int64(len(idAlphabet)))
	for i := range buf {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform source is broken
			buf[i] = idAlphabet[time.Now().UnixNano()%int64(len(idAlphabet))]
			continue
		}
		buf[i] = idAlphabet[v.Int64()]
	}
	return string(buf)
}

func NewGroupID(now time.Time) string {
	return fmt.Sprintf("group_%d_%s", now.UnixNano()/int64(time.Millisecond), randSuffix(6))
}

func NewProposalID(now time.Time) string {
	return fmt.Sprintf("prop_%d_%s", now.UnixNano()/int64(time.Millisecond), randSuffix(6))
}
