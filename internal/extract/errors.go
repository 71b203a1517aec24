package extract

import "fmt"

// Error codes surfaced by extraction. These are machine-readable so the
// pipeline can classify failures without string matching.
const (
	CodeRequest    = "request_failed"
	CodeHTTPStatus = "http_status"
	CodeTooLarge   = "body_too_large"
	CodeBadHTML    = "bad_html"
	CodeNoText     = "no_text"
)

// Error is an extraction failure with a stable code and the underlying cause.
type Error struct {
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("extract %s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func errf(code, msg string, err error) *Error {
	return &Error{Code: code, Msg: msg, Err: err}
}
