package utils

// ResponseData is the uniform REST response envelope.
type ResponseData struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Results any    `json:"results,omitempty"`
}

// PanicIfNeeded short-circuits a handler on error; the recovery middleware
// translates the panic into the proper HTTP response.
func PanicIfNeeded(err error) {
	if err != nil {
		panic(err)
	}
}
