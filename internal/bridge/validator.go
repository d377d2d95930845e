package bridge

import (
	"encoding/json"
	"strings"

	"github.com/Iron-Ham/genbridge/internal/errors"
)

// Validate parses a request body and checks it against the registered
// providers. It never launches anything.
//
// The body must be a JSON object. "prompt" must be a string that is not
// blank; the original, untrimmed text is kept. An absent "provider" resolves
// to the default provider; a present one, including "" and null, must be a
// registered name.
func Validate(body []byte, providers Providers) (Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		verr := errors.NewValidationError("body must be a JSON object").WithCause(errors.ErrInvalidBody)
		if err != nil {
			verr = verr.WithValue(err.Error())
		}
		return Request{}, verr
	}

	prompt, present, ok := stringField(fields, "prompt")
	if !present || !ok || strings.TrimSpace(prompt) == "" {
		return Request{}, errors.NewValidationError("prompt is missing or blank").
			WithField("prompt").
			WithCause(errors.ErrPromptRequired)
	}

	provider, present, ok := stringField(fields, "provider")
	if !present {
		provider = providers.Default()
	} else if !ok {
		return Request{}, errors.NewValidationError("provider must be a string").
			WithField("provider").
			WithCause(errors.ErrInvalidProvider)
	}
	if _, registered := providers.Lookup(provider); !registered {
		return Request{}, errors.NewValidationError("provider is not registered").
			WithField("provider").
			WithValue(provider).
			WithCause(errors.ErrInvalidProvider)
	}

	return Request{Prompt: prompt, Provider: provider}, nil
}

// stringField returns fields[key] as a string. present reports whether the
// key exists at all; ok is false when it holds null or a non-string.
func stringField(fields map[string]json.RawMessage, key string) (value string, present, ok bool) {
	raw, present := fields[key]
	if !present {
		return "", false, false
	}
	if string(raw) == "null" {
		return "", true, false
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", true, false
	}
	return value, true, true
}
