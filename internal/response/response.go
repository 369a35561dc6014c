package response

// Response is the JSON envelope for middleware rejections. Handlers define
// their own response structs next to the handler; this shared shape exists
// only for responses produced before a handler runs.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Error builds a failure envelope.
func Error(message string) Response {
	return Response{
		Success: false,
		Message: message,
	}
}
