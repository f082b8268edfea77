package utils

import (
	"context"
	"time"
)

// Upper bound for a single settlement round trip against token and vault backends
const DefaultTimeout = 2 * time.Minute

func NewContext() (ctx context.Context, cancel func()) {
	return NewContextWithTimeout(DefaultTimeout)
}

func NewContextWithTimeout(timeout time.Duration) (ctx context.Context, cancel func()) {
	return context.WithTimeout(context.TODO(), timeout)
}
