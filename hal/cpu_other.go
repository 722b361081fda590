//go:build !linux

package hal

import "runtime"

type hostCPU struct{}

func (hostCPU) Count() int    { return runtime.NumCPU() }
func (hostCPU) Current() int  { return 0 }
func (hostCPU) Pin(int) error { return ErrNotImplemented }
