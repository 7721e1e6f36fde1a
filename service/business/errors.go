package business

import "errors"

var (
	ErrorInitializationFail = errors.New("internal configuration is invalid")

	ErrorCallbackMissingIDs = errors.New("callback is missing its correlation identifiers")

	ErrorIntentDoesNotExist = errors.New("specified payment intent does not exist")
)
