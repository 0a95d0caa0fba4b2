package vkez

import (
	"github.com/cockroachdb/errors"

	"github.com/celer/vkez/driver"
)

// Result codes. Errors returned by this package wrap one of them, test with
// errors.Is.
const (
	NotReady   = driver.NotReady
	Timeout    = driver.Timeout
	EventSet   = driver.EventSet
	EventReset = driver.EventReset
	Incomplete = driver.Incomplete
	Suboptimal = driver.Suboptimal

	ErrOutOfHostMemory      = driver.ErrOutOfHostMemory
	ErrOutOfDeviceMemory    = driver.ErrOutOfDeviceMemory
	ErrInitializationFailed = driver.ErrInitializationFailed
	ErrDeviceLost           = driver.ErrDeviceLost
	ErrMemoryMapFailed      = driver.ErrMemoryMapFailed
	ErrLayerNotPresent      = driver.ErrLayerNotPresent
	ErrExtensionNotPresent  = driver.ErrExtensionNotPresent
	ErrFeatureNotPresent    = driver.ErrFeatureNotPresent
	ErrFormatNotSupported   = driver.ErrFormatNotSupported
	ErrTooManyObjects       = driver.ErrTooManyObjects
	ErrFragmentedPool       = driver.ErrFragmentedPool
	ErrOutOfPoolMemory      = driver.ErrOutOfPoolMemory
	ErrSurfaceLost          = driver.ErrSurfaceLost
	ErrOutOfDate            = driver.ErrOutOfDate
	ErrValidation           = driver.ErrValidation

	ErrShaderCompileFailed = driver.ErrShaderCompileFailed
	ErrNoEntryPoint        = driver.ErrNoEntryPoint
	ErrInvalidShaderModule = driver.ErrInvalidShaderModule
	ErrInvalidBinding      = driver.ErrInvalidBinding
	ErrInvalidState        = driver.ErrInvalidState
	ErrInvalidHandle       = driver.ErrInvalidHandle
)

// ResultOf returns the result code err wraps, or ErrValidation if it wraps
// none. A nil error is driver.Success.
func ResultOf(err error) driver.Result {
	if err == nil {
		return driver.Success
	}
	var r driver.Result
	if errors.As(err, &r) {
		return r
	}
	return ErrValidation
}

// IsPresentationError reports whether the swapchain must be recreated.
func IsPresentationError(err error) bool {
	return errors.Is(err, ErrOutOfDate) || errors.Is(err, ErrSurfaceLost)
}

// IsValidationError reports whether err is a usage error that leaves the
// device intact.
func IsValidationError(err error) bool {
	switch ResultOf(err) {
	case ErrValidation, ErrInvalidBinding, ErrInvalidState, ErrInvalidHandle,
		ErrShaderCompileFailed, ErrNoEntryPoint, ErrInvalidShaderModule:
		return true
	}
	return false
}

// IsFatal reports whether the device was lost and must be torn down.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDeviceLost)
}
