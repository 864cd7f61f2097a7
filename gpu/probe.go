// Package gpu provides the optional compute-accelerated structure
// matcher and the capability probe used to decide whether to enable it.
//
// The matcher implements img2chars.StructureMatcher on top of wgpu. It
// is an acceleration layer only: any initialization or dispatch failure
// is reported to the caller, which falls back to the CPU matcher, so
// GPU absence is never fatal.
package gpu

import (
	"fmt"

	"github.com/rajveermalviya/go-webgpu/wgpu"
)

// Report describes the GPU capability chain, exposed for UI display so
// callers can decide whether to retry or proceed unaccelerated.
type Report struct {
	HasComputeAPI      bool   `json:"hasComputeAPI"`
	HasAdapter         bool   `json:"hasAdapter"`
	HasDevice          bool   `json:"hasDevice"`
	AdapterDescription string `json:"adapterDescription,omitempty"`
	FailureReason      string `json:"failureReason,omitempty"`
}

// Available reports whether the full capability chain is present.
func (r Report) Available() bool {
	return r.HasComputeAPI && r.HasAdapter && r.HasDevice
}

// Probe walks the instance→adapter→device chain and reports how far it
// got. The probe allocates and releases its own handles; it shares
// nothing with matchers.
func Probe() Report {
	var report Report

	instance := wgpu.CreateInstance(nil)
	if instance == nil {
		report.FailureReason = "wgpu instance unavailable"
		return report
	}
	defer instance.Release()
	report.HasComputeAPI = true

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreference_HighPerformance,
	})
	if err != nil || adapter == nil {
		report.FailureReason = fmt.Sprintf("no adapter: %v", err)
		return report
	}
	defer adapter.Release()
	report.HasAdapter = true

	props := adapter.GetProperties()
	report.AdapterDescription = fmt.Sprintf("%s (%v)", props.Name, props.BackendType)

	device, err := adapter.RequestDevice(nil)
	if err != nil || device == nil {
		report.FailureReason = fmt.Sprintf("no device: %v", err)
		return report
	}
	defer device.Release()
	report.HasDevice = true

	return report
}
