package core

import (
	"errors"
)

var (
	ErrInitializationFailed = errors.New("initialization failed")
	ErrWindowClaimFailed    = errors.New("failed to claim window for device")

	ErrUnrecognizedStage       = errors.New("unrecognized shader stage")
	ErrNoSupportedFormat       = errors.New("no supported shader formats found")
	ErrShaderFileNotFound      = errors.New("failed to open shader")
	ErrImageDecodeFailed       = errors.New("failed to decode image")
	ErrUnsupportedChannelCount = errors.New("unsupported pixel channel count")

	ErrShaderCreationFailed   = errors.New("failed to create shader")
	ErrPipelineCreationFailed = errors.New("failed to create graphics pipeline")
	ErrResourceCreationFailed = errors.New("failed to create device resource")
	ErrTransferMapFailed      = errors.New("failed to map transfer buffer")
	ErrTransferTooLarge       = errors.New("transfer exceeds 4 GiB")

	ErrCommandBufferAcquireFailed = errors.New("failed to acquire command buffer")
	ErrSubmitFailed               = errors.New("failed to submit command buffer")
	ErrSwapchainAcquireFailed     = errors.New("failed to acquire swapchain texture")
)

// FailureKind groups errors by the stage of the lifecycle that produced them.
type FailureKind uint8

const (
	UnknownFailure FailureKind = iota
	// Window, device or surface could not be brought up.
	InitializationFailure
	// Shader or image assets are missing or unusable.
	AssetFailure
	// The device rejected a pipeline, buffer, texture, sampler or transfer buffer.
	ResourceCreationFailure
	// Command buffer acquisition or submission failed.
	RuntimeSubmissionFailure
)

func (k FailureKind) String() string {
	switch k {
	case InitializationFailure:
		return "InitializationFailure"
	case AssetFailure:
		return "AssetFailure"
	case ResourceCreationFailure:
		return "ResourceCreationFailure"
	case RuntimeSubmissionFailure:
		return "RuntimeSubmissionFailure"
	}
	return "UnknownFailure"
}

var failureKinds = []struct {
	err  error
	kind FailureKind
}{
	{ErrInitializationFailed, InitializationFailure},
	{ErrWindowClaimFailed, InitializationFailure},
	{ErrUnrecognizedStage, AssetFailure},
	{ErrNoSupportedFormat, AssetFailure},
	{ErrShaderFileNotFound, AssetFailure},
	{ErrImageDecodeFailed, AssetFailure},
	{ErrUnsupportedChannelCount, AssetFailure},
	{ErrShaderCreationFailed, ResourceCreationFailure},
	{ErrPipelineCreationFailed, ResourceCreationFailure},
	{ErrResourceCreationFailed, ResourceCreationFailure},
	{ErrTransferMapFailed, ResourceCreationFailure},
	{ErrTransferTooLarge, ResourceCreationFailure},
	{ErrCommandBufferAcquireFailed, RuntimeSubmissionFailure},
	{ErrSubmitFailed, RuntimeSubmissionFailure},
	{ErrSwapchainAcquireFailed, RuntimeSubmissionFailure},
}

// Classify reports the failure kind of the first known sentinel found in err's chain.
func Classify(err error) FailureKind {
	if err == nil {
		return UnknownFailure
	}
	for _, fk := range failureKinds {
		if errors.Is(err, fk.err) {
			return fk.kind
		}
	}
	return UnknownFailure
}
