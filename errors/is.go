package errors

import stderrors "errors"

func is(err, target error) bool {
	return stderrors.Is(err, target)
}
