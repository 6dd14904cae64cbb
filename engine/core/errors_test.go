package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	assert := assert.New(t)

	cases := []struct {
		err  error
		kind FailureKind
	}{
		{fmt.Errorf("%w: no vulkan driver", ErrInitializationFailed), InitializationFailure},
		{ErrWindowClaimFailed, InitializationFailure},
		{fmt.Errorf("%w: Foo.geom", ErrUnrecognizedStage), AssetFailure},
		{ErrNoSupportedFormat, AssetFailure},
		{fmt.Errorf("%w: open x.spv: no such file", ErrShaderFileNotFound), AssetFailure},
		{ErrUnsupportedChannelCount, AssetFailure},
		{ErrImageDecodeFailed, AssetFailure},
		{fmt.Errorf("%w: bad bytecode", ErrShaderCreationFailed), ResourceCreationFailure},
		{ErrPipelineCreationFailed, ResourceCreationFailure},
		{ErrResourceCreationFailed, ResourceCreationFailure},
		{ErrTransferMapFailed, ResourceCreationFailure},
		{ErrCommandBufferAcquireFailed, RuntimeSubmissionFailure},
		{fmt.Errorf("frame 12: %w", ErrSubmitFailed), RuntimeSubmissionFailure},
		{errors.New("something else"), UnknownFailure},
		{nil, UnknownFailure},
	}
	for _, c := range cases {
		assert.Equal(c.kind, Classify(c.err), "%v", c.err)
	}
}

func TestFailureKindString(t *testing.T) {
	assert.Equal(t, "AssetFailure", AssetFailure.String())
	assert.Equal(t, "RuntimeSubmissionFailure", RuntimeSubmissionFailure.String())
	assert.Equal(t, "UnknownFailure", FailureKind(42).String())
}
