package pipeline

import "fmt"

// Device is a placement policy.
type Device string

const (
	DeviceCUDA                 Device = "cuda"
	DeviceCPU                  Device = "cpu"
	DeviceModelCPUOffload      Device = "enable_model_cpu_offload"
	DeviceSequentialCPUOffload Device = "enable_sequential_cpu_offload"
)

// Devices lists the accepted policies.
var Devices = []Device{DeviceCUDA, DeviceCPU, DeviceModelCPUOffload, DeviceSequentialCPUOffload}

// InvalidDeviceError rejects an unknown device policy.
type InvalidDeviceError struct{ Value string }

func (e *InvalidDeviceError) Error() string { return fmt.Sprintf("Invalid device: %s", e.Value) }

// ParseDevice validates s. Empty selects cuda.
func ParseDevice(s string) (Device, error) {
	if s == "" {
		return DeviceCUDA, nil
	}
	for _, d := range Devices {
		if string(d) == s {
			return d, nil
		}
	}
	return "", &InvalidDeviceError{Value: s}
}

// Offload reports whether weights stay in host memory between uses.
func (d Device) Offload() bool {
	return d == DeviceModelCPUOffload || d == DeviceSequentialCPUOffload
}

// NeedsAccelerator reports whether the policy requires a GPU.
func (d Device) NeedsAccelerator() bool { return d != DeviceCPU }
