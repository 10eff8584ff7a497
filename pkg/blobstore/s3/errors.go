package s3

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// errorsAs wraps errors.As with the generic signature used by isRetryable.
func errorsAs(err error, target *interface{ ErrorCode() string }) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		*target = apiErr
		return true
	}
	return false
}

func isNoSuchKey(err error) bool {
	var nsk *types.NoSuchKey
	return errors.As(err, &nsk)
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey"
	}
	return false
}
