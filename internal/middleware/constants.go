package middleware

// HTTP header constants.
const (
	// HeaderContentType is the Content-Type header name.
	HeaderContentType = "Content-Type"

	// HeaderXRequestID is the X-Request-ID header name.
	HeaderXRequestID = "X-Request-ID"
)

// ContentTypeJSON is the JSON content type.
const ContentTypeJSON = "application/json"

// Error response constants.
const (
	// ErrInternalServerError is the error body for recovered panics.
	ErrInternalServerError = `{"error":"internal server error"}`

	// ErrRequestEntityTooLarge is the error body for oversized requests.
	ErrRequestEntityTooLarge = `{"error":"request entity too large"}`
)
