package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// FillFormsName is the tool name the form assistant is configured with.
const FillFormsName = "fill_forms"

// FillFormsAck is returned to the assistant for every fill_forms call.
const FillFormsAck = "forms are being filled"

const fillFormsDescription = "Use this tool to fill in forms entries. Remember that you might have access to files that can help you make informed responses."

// FormResponses is the form_name: value listing produced by the assistant.
// Models sometimes send a JSON array instead of a string; entries are joined
// with newlines.
type FormResponses string

// UnmarshalJSON accepts a string or an array of strings.
func (f *FormResponses) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FormResponses(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("responses must be a string or a list of strings")
	}
	*f = FormResponses(strings.Join(list, "\n"))
	return nil
}

// FillFormsArgs is the argument shape of fill_forms.
type FillFormsArgs struct {
	Responses FormResponses `json:"responses" jsonschema_description:"A list of strings of the forms responses with format form_name: value. MAKE SURE that the form_name corresponds to the name of the form, which may seem abstract or misleading."`
}

// Validate requires a non-empty responses listing.
func (a *FillFormsArgs) Validate() error {
	if strings.TrimSpace(string(a.Responses)) == "" {
		return errors.New("responses is required")
	}
	return nil
}

// FillForms acknowledges the responses. Persisting them is up to the caller,
// which reads them back from the dispatched call.
func FillForms(_ context.Context, _ FillFormsArgs) (string, error) {
	return FillFormsAck, nil
}

// NewFillFormsTool returns the fill_forms tool.
func NewFillFormsTool() Tool {
	return New(FillFormsName, fillFormsDescription, FillForms)
}

// DecodeFillForms parses the raw arguments of a fill_forms call.
func DecodeFillForms(arguments string) (FillFormsArgs, error) {
	return decodeArgs[FillFormsArgs](json.RawMessage(arguments))
}
