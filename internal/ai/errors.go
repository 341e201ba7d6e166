package ai

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind is the classification of a single backend failure. The service
// decides what to do next from the kind alone.
type ErrorKind int

const (
	// KindUnexpected covers network failures and malformed responses.
	KindUnexpected ErrorKind = iota
	// KindBilling means the account-wide spending ceiling was hit.
	KindBilling
	// KindCapability means this model cannot serve the request but a
	// different model might.
	KindCapability
	// KindTransient is a 5xx or rate limit.
	KindTransient
	// KindUpstream is any other client error reported by the API.
	KindUpstream
)

func (k ErrorKind) String() string {
	switch k {
	case KindBilling:
		return "billing"
	case KindCapability:
		return "capability"
	case KindTransient:
		return "transient"
	case KindUpstream:
		return "upstream"
	default:
		return "unexpected"
	}
}

// BackendError is a classified failure from one backend attempt.
type BackendError struct {
	Model   string
	Kind    ErrorKind
	Status  int
	Type    string
	Code    string
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s error (status %d): %s", e.Model, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s error: %s", e.Model, e.Kind, e.Message)
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) attempt() AttemptError {
	return AttemptError{Status: e.Status, Type: e.Type, Code: e.Code, Message: e.Message}
}

// openAIErrorEnvelope is the error body returned by the OpenAI API.
type openAIErrorEnvelope struct {
	Error struct {
		Message string  `json:"message"`
		Type    string  `json:"type"`
		Param   *string `json:"param"`
		Code    *string `json:"code"`
	} `json:"error"`
}

var billingCodes = map[string]bool{
	"billing_hard_limit_reached": true,
	"insufficient_quota":         true,
}

var capabilityCodes = map[string]bool{
	"model_not_found":       true,
	"invalid_size":          true,
	"unsupported_value":     true,
	"unsupported_parameter": true,
	"unknown_parameter":     true,
	"invalid_value":         true,
}

// Parameters that differ between image models; a rejection naming one of
// them means another model may accept the request.
var capabilityParams = map[string]bool{
	"model": true, "size": true, "quality": true, "style": true,
	"response_format": true, "output_format": true,
}

// classifyOpenAIError translates a non-2xx OpenAI response into a
// BackendError. Every dependency on the vendor's error schema lives here.
func classifyOpenAIError(model string, status int, body []byte) *BackendError {
	e := &BackendError{Model: model, Status: status}

	var env openAIErrorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		e.Message = env.Error.Message
		e.Type = env.Error.Type
		if env.Error.Code != nil {
			e.Code = *env.Error.Code
		}
	} else {
		e.Message = strings.TrimSpace(string(body))
		if e.Message == "" {
			e.Message = http.StatusText(status)
		}
	}

	var param string
	if env.Error.Param != nil {
		param = *env.Error.Param
	}

	switch {
	case billingCodes[e.Code] || e.Type == "insufficient_quota":
		e.Kind = KindBilling
	case status == http.StatusTooManyRequests || status >= 500:
		e.Kind = KindTransient
	case status == http.StatusNotFound,
		capabilityCodes[e.Code],
		status == http.StatusBadRequest && capabilityParams[param],
		status == http.StatusForbidden && strings.Contains(strings.ToLower(e.Message), "must be verified"):
		e.Kind = KindCapability
	default:
		e.Kind = KindUpstream
	}
	return e
}

// unexpectedError wraps a transport or decoding failure.
func unexpectedError(model string, err error) *BackendError {
	return &BackendError{Model: model, Kind: KindUnexpected, Message: err.Error(), Err: err}
}
