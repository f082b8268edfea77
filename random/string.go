package random

import (
	"math/rand/v2"
)

const (
	CharsetAlphaNumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	CharsetDigits       = "0123456789"
	CharsetHex          = "0123456789abcdef"
)

func String(r *rand.Rand, options string, length int) (s string) {
	rOptions := []rune(options)

	var temp = make([]rune, length)
	for index := range temp {
		temp[index] = rOptions[r.IntN(len(rOptions))]
	}
	return string(temp)
}

// Address returns a random 20 bytes account address in 0x hex notation
func Address(r *rand.Rand) (address string) {
	return "0x" + String(r, CharsetHex, 40)
}

// Reference returns a random payment reference of size bytes in 0x hex notation
func Reference(r *rand.Rand, size int) (reference string) {
	return "0x" + String(r, CharsetHex, size*2)
}
