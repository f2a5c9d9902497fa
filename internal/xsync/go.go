// Package xsync contains useful synchronization primitives.
package xsync

import "fmt"

// Go allows running a function in a goroutine and catching any panics.
// The returned channel receives exactly one value: the function's error or
// the recovered panic wrapped as an error.
func Go(fn func() error) <-chan error {
	errs := make(chan error, 1)
	go func() {
		defer func() {
			r := recover()
			if r != nil {
				select {
				case errs <- fmt.Errorf("panic in go fn: %v", r):
				default:
				}
			}
		}()
		errs <- fn()
	}()
	return errs
}
