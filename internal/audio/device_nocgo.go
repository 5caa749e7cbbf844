//go:build nocgo

package audio

import "errors"

// OtoDevice is unavailable in builds without cgo.
type OtoDevice struct {
	MockDevice
}

// NewOtoDevice always fails in builds without cgo.
func NewOtoDevice(platform *PlatformInfo) (*OtoDevice, error) {
	return nil, errors.New("audio output not available in nocgo build")
}
