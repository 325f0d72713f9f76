package klaviyo

import (
	"errors"
	"fmt"
)

// ErrMissingAPIKey is returned when Submit is called without a public API key.
var ErrMissingAPIKey = errors.New("klaviyo: no public API key (company_id) provided")

// ErrorDetail is one entry of the vendor's JSON:API error list.
type ErrorDetail struct {
	ID     string                 `json:"id,omitempty"`
	Status string                 `json:"status,omitempty"`
	Code   string                 `json:"code,omitempty"`
	Title  string                 `json:"title,omitempty"`
	Detail string                 `json:"detail,omitempty"`
	Source map[string]interface{} `json:"source,omitempty"`
}

// ErrorBody is the parsed error response.
type ErrorBody struct {
	Errors []ErrorDetail `json:"errors"`
}

// APIError is returned for any non-202 response once retries are exhausted.
type APIError struct {
	Status int
	Body   ErrorBody
}

func (e *APIError) Error() string {
	if len(e.Body.Errors) > 0 && e.Body.Errors[0].Detail != "" {
		return fmt.Sprintf("klaviyo: API error: %d: %s", e.Status, e.Body.Errors[0].Detail)
	}
	return fmt.Sprintf("klaviyo: API error: %d", e.Status)
}

// syntheticBody stands in for a response body that is not valid JSON.
func syntheticBody(status int) ErrorBody {
	return ErrorBody{Errors: []ErrorDetail{{
		Status: fmt.Sprintf("%d", status),
		Title:  "HTTP Error",
		Detail: fmt.Sprintf("HTTP error %d", status),
	}}}
}

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
