package participants

// Error is an application-layer error that can be mapped to an HTTP response.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

func notProvisioned() *Error {
	return &Error{
		Status:  404,
		Code:    "PARTICIPANT_NOT_PROVISIONED",
		Message: "No participant profile exists for the authenticated subject.",
	}
}

func validationError(message string, details map[string]any) *Error {
	return &Error{
		Status:  422,
		Code:    "VALIDATION_ERROR",
		Message: message,
		Details: details,
	}
}
