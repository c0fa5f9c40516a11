package error

// GenericError is implemented by every typed error in this package so the
// REST recovery middleware can translate panics into proper HTTP responses.
type GenericError interface {
	error
	ErrCode() string
	StatusCode() int
}
