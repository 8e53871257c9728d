package provider

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
	"google.golang.org/api/googleapi"
)

// ConfigurationError means a provider cannot be used as configured. It is
// raised before any network call and ends the turn.
type ConfigurationError struct {
	Provider string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.Provider == "" {
		return "provider configuration: " + e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Reason)
}

// BackendError is a failed round trip. Status is the HTTP status when the
// backend answered, zero for transport failures.
type BackendError struct {
	Provider string
	Status   int
	Err      error
}

func (e *BackendError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s request failed with status %d: %v", e.Provider, e.Status, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// ProtocolError means the backend answered but the body was malformed or empty.
type ProtocolError struct {
	Provider string
	Err      error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s returned an unusable response: %v", e.Provider, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

var (
	errEmptyReply  = errors.New("empty response")
	errEmptyPrompt = errors.New("prompt has no conversation messages")
)

func missingCredential(provider string) error {
	return &ConfigurationError{Provider: provider, Reason: "API key is required"}
}

// classify maps SDK and transport errors onto the provider error taxonomy.
func classify(provider string, err error) error {
	if err == nil {
		return nil
	}

	var cfgErr *ConfigurationError
	var backendErr *BackendError
	var protoErr *ProtocolError
	if errors.As(err, &cfgErr) || errors.As(err, &backendErr) || errors.As(err, &protoErr) {
		return err
	}

	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return &BackendError{Provider: provider, Status: openaiErr.StatusCode, Err: err}
	}
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return &BackendError{Provider: provider, Status: anthropicErr.StatusCode, Err: err}
	}
	var ollamaErr api.StatusError
	if errors.As(err, &ollamaErr) {
		return &BackendError{Provider: provider, Status: ollamaErr.StatusCode, Err: err}
	}
	var googleErr *googleapi.Error
	if errors.As(err, &googleErr) {
		return &BackendError{Provider: provider, Status: googleErr.Code, Err: err}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, errEmptyReply) {
		return &ProtocolError{Provider: provider, Err: err}
	}

	return &BackendError{Provider: provider, Err: err}
}
