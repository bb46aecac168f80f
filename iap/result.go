package iap

import (
	"fmt"

	"github.com/pkg/errors"
)

// ResponseCode classifies the outcome of every billing operation. Non-negative
// codes originate from the billing service, codes at or below ErrorBase are
// produced by the session itself.
type ResponseCode int

// Billing service response codes.
const (
	ResponseOK                 ResponseCode = 0
	ResponseUserCanceled       ResponseCode = 1
	ResponseBillingUnavailable ResponseCode = 3
	ResponseItemUnavailable    ResponseCode = 4
	ResponseDeveloperError     ResponseCode = 5
	ResponseError              ResponseCode = 6
	ResponseItemAlreadyOwned   ResponseCode = 7
	ResponseItemNotOwned       ResponseCode = 8
)

// Session response codes.
const (
	ErrorBase                      ResponseCode = -1000
	ErrorRemoteException           ResponseCode = -1001
	ErrorBadResponse               ResponseCode = -1002
	ErrorVerificationFailed        ResponseCode = -1003
	ErrorSendIntentFailed          ResponseCode = -1004
	ErrorUserCancelled             ResponseCode = -1005
	ErrorUnknownPurchaseResponse   ResponseCode = -1006
	ErrorMissingToken              ResponseCode = -1007
	ErrorUnknown                   ResponseCode = -1008
	ErrorSubscriptionsNotAvailable ResponseCode = -1009
	ErrorInvalidConsumption        ResponseCode = -1010
)

var serviceDescriptions = []string{
	"OK",
	"User Canceled",
	"Unknown",
	"Billing Unavailable",
	"Item unavailable",
	"Developer Error",
	"Error",
	"Item Already Owned",
	"Item not owned",
}

var sessionDescriptions = []string{
	"OK",
	"Remote exception during initialization",
	"Bad response received",
	"Purchase signature verification failed",
	"Send intent failed",
	"User cancelled",
	"Unknown purchase response",
	"Missing token",
	"Unknown error",
	"Subscriptions not available",
	"Invalid consumption attempt",
}

// String returns the human readable description of the code.
func (c ResponseCode) String() string {
	if c <= ErrorBase {
		index := int(ErrorBase - c)
		if index < len(sessionDescriptions) {
			return sessionDescriptions[index]
		}
		return fmt.Sprintf("%d:Unknown IAB Helper Error", int(c))
	}

	if c < 0 || int(c) >= len(serviceDescriptions) {
		return fmt.Sprintf("%d:Unknown", int(c))
	}
	return serviceDescriptions[c]
}

// Result is the outcome of a billing operation.
type Result struct {
	Response ResponseCode
	Message  string
}

func NewResult(response ResponseCode, message string) Result {
	if message == "" {
		message = response.String()
	} else {
		message = message + " (response: " + response.String() + ")"
	}
	return Result{Response: response, Message: message}
}

func (r Result) IsSuccess() bool {
	return r.Response == ResponseOK
}

func (r Result) IsFailure() bool {
	return !r.IsSuccess()
}

func (r Result) String() string {
	return "IabResult: " + r.Message
}

// Error is returned by the blocking operations of a Session. It carries the
// same Result an asynchronous operation would have delivered to its callback.
type Error struct {
	Result Result
	cause  error
}

func NewError(response ResponseCode, message string) *Error {
	return &Error{Result: NewResult(response, message)}
}

func WrapError(cause error, response ResponseCode, message string) *Error {
	return &Error{Result: NewResult(response, message), cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Result.Message + ": " + e.cause.Error()
	}
	return e.Result.Message
}

// Cause satisfies the github.com/pkg/errors causer interface.
func (e *Error) Cause() error {
	return e.cause
}

func (e *Error) Unwrap() error {
	return e.cause
}

// ResultFromError recovers the Result of an error returned by a Session.
// Errors that did not originate from the session map to ErrorUnknown.
func ResultFromError(err error) Result {
	if err == nil {
		return NewResult(ResponseOK, "")
	}

	var iabErr *Error
	if errors.As(err, &iabErr) {
		return iabErr.Result
	}
	return NewResult(ErrorUnknown, err.Error())
}

// ResponseCodeOf returns the response code carried by err, ResponseOK for nil.
func ResponseCodeOf(err error) ResponseCode {
	return ResultFromError(err).Response
}
