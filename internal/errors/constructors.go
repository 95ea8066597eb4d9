package errors

// Convenience functions for common error patterns

// Call-shape errors

func InvalidArgument(argument, reason string) *GittehError {
	return New(CategoryInvalidArgument, "invalid argument").
		WithContext("argument", argument).
		WithContext("reason", reason)
}

func MissingCallback(op string) *GittehError {
	return New(CategoryInvalidArgument, "completion callback is required").
		WithContext("op", op)
}

// Native store errors

func NotFound(kind, key string) *GittehError {
	return New(CategoryNotFound, kind+" not found").
		WithContext("kind", kind).
		WithContext("key", key)
}

func NotFoundCause(kind, key string, cause error) *GittehError {
	return Wrap(cause, CategoryNotFound, kind+" not found").
		WithContext("kind", kind).
		WithContext("key", key)
}

func NativeFailure(op string, cause error) *GittehError {
	return Wrap(cause, CategoryNativeFailure, "native call failed").
		WithContext("op", op)
}

// Lifetime errors

func StaleHandle(kind string) *GittehError {
	return New(CategoryStaleHandle, kind+" is no longer valid").
		WithContext("kind", kind)
}

// Config errors

func ConfigNotFound(path string) *GittehError {
	return New(CategoryConfig, "configuration file not found").
		WithContext("path", path)
}

func ValidationFailed(field, reason string) *GittehError {
	return New(CategoryConfig, "invalid "+field+": "+reason).
		WithContext("field", field).
		WithContext("reason", reason)
}

// Internal errors

func InternalError(message string, cause error) *GittehError {
	return Wrap(cause, CategoryInternal, message)
}
