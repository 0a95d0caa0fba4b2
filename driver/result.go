package driver

import "strconv"

// Result is a driver result code. Negative values are failures, positive
// values are statuses. Every Result except Success satisfies error so that a
// status such as Timeout can be returned and tested with errors.Is.
type Result int32

const (
	Success    Result = 0
	NotReady   Result = 1
	Timeout    Result = 2
	EventSet   Result = 3
	EventReset Result = 4
	Incomplete Result = 5
	Suboptimal Result = 1000001003

	ErrOutOfHostMemory      Result = -1
	ErrOutOfDeviceMemory    Result = -2
	ErrInitializationFailed Result = -3
	ErrDeviceLost           Result = -4
	ErrMemoryMapFailed      Result = -5
	ErrLayerNotPresent      Result = -6
	ErrExtensionNotPresent  Result = -7
	ErrFeatureNotPresent    Result = -8
	ErrIncompatibleDriver   Result = -9
	ErrTooManyObjects       Result = -10
	ErrFormatNotSupported   Result = -11
	ErrFragmentedPool       Result = -12
	ErrOutOfPoolMemory      Result = -1000069000
	ErrSurfaceLost          Result = -1000000000
	ErrOutOfDate            Result = -1000001004
	ErrValidation           Result = -1000011001

	// Codes produced above the driver.
	ErrShaderCompileFailed Result = -1000900000
	ErrNoEntryPoint        Result = -1000900001
	ErrInvalidShaderModule Result = -1000900002
	ErrInvalidBinding      Result = -1000900003
	ErrInvalidState        Result = -1000900004
	ErrInvalidHandle       Result = -1000900005
)

var resultNames = map[Result]string{
	Success:                 "success",
	NotReady:                "not ready",
	Timeout:                 "timeout",
	EventSet:                "event set",
	EventReset:              "event reset",
	Incomplete:              "incomplete",
	Suboptimal:              "suboptimal",
	ErrOutOfHostMemory:      "out of host memory",
	ErrOutOfDeviceMemory:    "out of device memory",
	ErrInitializationFailed: "initialization failed",
	ErrDeviceLost:           "device lost",
	ErrMemoryMapFailed:      "memory map failed",
	ErrLayerNotPresent:      "layer not present",
	ErrExtensionNotPresent:  "extension not present",
	ErrFeatureNotPresent:    "feature not present",
	ErrIncompatibleDriver:   "incompatible driver",
	ErrTooManyObjects:       "too many objects",
	ErrFormatNotSupported:   "format not supported",
	ErrFragmentedPool:       "fragmented pool",
	ErrOutOfPoolMemory:      "out of pool memory",
	ErrSurfaceLost:          "surface lost",
	ErrOutOfDate:            "swapchain out of date",
	ErrValidation:           "validation failed",
	ErrShaderCompileFailed:  "shader compile failed",
	ErrNoEntryPoint:         "no entry point",
	ErrInvalidShaderModule:  "invalid shader module",
	ErrInvalidBinding:       "invalid binding",
	ErrInvalidState:         "invalid state",
	ErrInvalidHandle:        "invalid handle",
}

func (r Result) Error() string {
	if s, ok := resultNames[r]; ok {
		return s
	}
	return "driver result " + strconv.Itoa(int(r))
}

// Failed reports whether r is a failure code.
func (r Result) Failed() bool { return r < 0 }

// Err converts r to an error, returning nil for Success.
func (r Result) Err() error {
	if r == Success {
		return nil
	}
	return r
}
