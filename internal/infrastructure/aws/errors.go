package aws

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/aws/smithy-go"

	"github.com/davidleathers/deepguard-backend/internal/domain/errors"
)

// serviceError converts an SDK failure into an EXTERNAL_SERVICE_ERROR that
// carries the AWS error code. Context errors pass through unchanged.
func serviceError(service, op string, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if _, ok := errors.As(err); ok {
		return err
	}

	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		appErr := errors.NewExternalError(service, fmt.Sprintf("%s: %s", op, apiErr.ErrorMessage())).
			WithDetails(map[string]interface{}{
				"aws_code": apiErr.ErrorCode(),
				"fault":    apiErr.ErrorFault().String(),
			}).
			WithCause(err)
		appErr.Retryable = apiErr.ErrorFault() != smithy.FaultClient || isThrottle(apiErr.ErrorCode())
		return appErr
	}

	return errors.NewExternalError(service, op+" failed").WithCause(err)
}

func isThrottle(code string) bool {
	switch code {
	case "ThrottlingException", "Throttling", "TooManyRequestsException",
		"ProvisionedThroughputExceededException", "LimitExceededException", "SlowDown":
		return true
	}
	return false
}
