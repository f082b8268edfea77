package utils

import (
	"errors"
	"math/bits"

	"golang.org/x/exp/constraints"
)

var (
	ErrOverflow       = errors.New("integer overflow")
	ErrDivisionByZero = errors.New("division by zero")
)

// Sum adds all values returning ErrOverflow if the result doesn't fit in T
func Sum[T constraints.Unsigned](values ...T) (total T, err error) {
	for _, value := range values {
		next := total + value
		if next < total {
			return total, ErrOverflow
		}
		total = next
	}
	return total, nil
}

// Chunk splits src in consecutive slices of at most size elements
func Chunk[T any](src []T, size int) (chunks [][]T) {
	if size <= 0 {
		return nil
	}
	chunks = make([][]T, 0, (len(src)+size-1)/size)
	for start := 0; start < len(src); start += size {
		end := min(start+size, len(src))
		chunks = append(chunks, src[start:end])
	}
	return chunks
}

// MulDiv computes floor(a*b/c) with a 128 bits intermediate product
func MulDiv(a, b, c uint64) (result uint64, err error) {
	if c == 0 {
		return 0, ErrDivisionByZero
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		return 0, ErrOverflow
	}
	result, _ = bits.Div64(hi, lo, c)
	return result, nil
}

// MulDivUp is MulDiv rounding towards positive infinity
func MulDivUp(a, b, c uint64) (result uint64, err error) {
	if c == 0 {
		return 0, ErrDivisionByZero
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		return 0, ErrOverflow
	}
	result, rem := bits.Div64(hi, lo, c)
	if rem > 0 {
		if result == ^uint64(0) {
			return 0, ErrOverflow
		}
		result++
	}
	return result, nil
}
