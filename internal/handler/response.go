package handler

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error errorPayload `json:"error"`
}

func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		Error: errorPayload{
			Code:    code,
			Message: message,
		},
	}
}

// ListResponse wraps collection endpoints so the item count travels with the
// page and clients need not special-case an empty list.
type ListResponse struct {
	Items any `json:"items"`
	Count int `json:"count"`
}

func NewListResponse(items any, count int) ListResponse {
	return ListResponse{Items: items, Count: count}
}
