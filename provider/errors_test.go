package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestClassify(t *testing.T) {
	var syntaxErr error
	{
		var v map[string]any
		syntaxErr = json.Unmarshal([]byte("{oops"), &v)
		require.Error(t, syntaxErr)
	}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		backend    bool
		protocol   bool
	}{
		{"ollama status", api.StatusError{StatusCode: http.StatusNotFound, ErrorMessage: "model not found"}, 404, true, false},
		{"google status", &googleapi.Error{Code: http.StatusForbidden, Message: "bad key"}, 403, true, false},
		{"wrapped status", fmt.Errorf("chat: %w", api.StatusError{StatusCode: 500}), 500, true, false},
		{"transport", errors.New("connection refused"), 0, true, false},
		{"malformed json", syntaxErr, 0, false, true},
		{"empty reply", errEmptyReply, 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("ollama", tt.err)

			var backendErr *BackendError
			var protoErr *ProtocolError
			assert.Equal(t, tt.backend, errors.As(got, &backendErr))
			assert.Equal(t, tt.protocol, errors.As(got, &protoErr))
			if tt.backend {
				assert.Equal(t, tt.wantStatus, backendErr.Status)
				assert.Equal(t, "ollama", backendErr.Provider)
			}
			assert.ErrorIs(t, got, tt.err, "the cause stays reachable")
		})
	}
}

func TestClassifyPassesTypedErrorsThrough(t *testing.T) {
	assert.NoError(t, classify("x", nil))

	cfgErr := &ConfigurationError{Provider: "openai", Reason: "API key is required"}
	assert.Same(t, cfgErr, classify("x", cfgErr))

	backendErr := &BackendError{Provider: "openai", Status: 429, Err: errors.New("slow down")}
	assert.Same(t, backendErr, classify("x", backendErr))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "provider configuration: no provider selected", (&ConfigurationError{Reason: "no provider selected"}).Error())
	assert.Equal(t, "openai: API key is required", missingCredential("openai").Error())
	assert.Equal(t, "anthropic request failed with status 529: overloaded",
		(&BackendError{Provider: "anthropic", Status: 529, Err: errors.New("overloaded")}).Error())
	assert.Equal(t, "ollama request failed: refused",
		(&BackendError{Provider: "ollama", Err: errors.New("refused")}).Error())
	assert.Equal(t, "gemini returned an unusable response: empty response",
		(&ProtocolError{Provider: "gemini", Err: errEmptyReply}).Error())
}
