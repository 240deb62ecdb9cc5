package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrorUnauthorized is returned by the session guard when the property id
// cannot be resolved from the request token.
var ErrorUnauthorized = errors.New("unauthorized")

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
