package services

import (
	"context"
	"errors"
	"testing"

	cloudflare "github.com/cloudflare/cloudflare-go"
	"github.com/stretchr/testify/assert"
)

func TestClassifyProbeError(t *testing.T) {
	cfErr := &cloudflare.Error{StatusCode: 0}

	// Only auth rejections and unknown zones blame the credentials.
	credential := []error{
		cloudflare.NewAuthenticationError(cfErr),
		cloudflare.NewAuthorizationError(cfErr),
		cloudflare.NewNotFoundError(cfErr),
	}
	for _, in := range credential {
		err := classifyProbeError(in)
		assert.Equal(t, KindInvalidCredentials, KindOf(err), "input %T", in)
	}

	// Cloudflare-side failures, rate limits, timeouts and transport
	// errors must not be reported as rejected credentials.
	external := []error{
		cloudflare.NewServiceError(cfErr),
		cloudflare.NewRatelimitError(cfErr),
		context.DeadlineExceeded,
		errors.New("dial tcp: connection refused"),
	}
	for _, in := range external {
		err := classifyProbeError(in)
		assert.Equal(t, KindExternalService, KindOf(err), "input %T", in)
	}
}
