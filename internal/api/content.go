package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const formInstructions = " Here are the forms. Fill out forms to the best of your ability. " +
	"If there's anything you cannot fill out with the information you have, skip it or fill them out with suggestions. " +
	"The forms information provides the name of the form as well as label or surround text information to give you more context on the purpose of the form. " +
	"Make sure to use your form-filling tool."

const contextPrefix = " Here's additional context: "

// BuildFormContent renders the message sent to the form filling assistant.
// The forms list is rendered in the literal list notation the assistant was
// prompted with ("['Name:', 'Email:']"), keeping object keys in request order.
func BuildFormContent(forms []json.RawMessage, extra string) (string, error) {
	var b strings.Builder
	b.WriteByte('[')
	for i, form := range forms {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := writeLiteral(&b, form); err != nil {
			return "", fmt.Errorf("render form %d: %w", i, err)
		}
	}
	b.WriteByte(']')
	b.WriteString(formInstructions)
	if extra != "" {
		b.WriteString(contextPrefix)
		b.WriteString(extra)
	}
	return b.String(), nil
}

func writeLiteral(b *strings.Builder, raw json.RawMessage) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := writeValue(b, dec); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data after value")
	}
	return nil
}

func writeValue(b *strings.Builder, dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '[':
			b.WriteByte('[')
			for i := 0; dec.More(); i++ {
				if i > 0 {
					b.WriteString(", ")
				}
				if err := writeValue(b, dec); err != nil {
					return err
				}
			}
			if _, err := dec.Token(); err != nil {
				return err
			}
			b.WriteByte(']')
		case '{':
			b.WriteByte('{')
			for i := 0; dec.More(); i++ {
				if i > 0 {
					b.WriteString(", ")
				}
				key, err := dec.Token()
				if err != nil {
					return err
				}
				b.WriteString(quote(key.(string)))
				b.WriteString(": ")
				if err := writeValue(b, dec); err != nil {
					return err
				}
			}
			if _, err := dec.Token(); err != nil {
				return err
			}
			b.WriteByte('}')
		default:
			return fmt.Errorf("unexpected delimiter %q", v)
		}
	case string:
		b.WriteString(quote(v))
	case json.Number:
		b.WriteString(v.String())
	case bool:
		if v {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case nil:
		b.WriteString("None")
	}
	return nil
}

// quote renders s single quoted, switching to double quotes when s holds a
// single quote and no double quote.
func quote(s string) string {
	q := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		q = '"'
	}
	var b strings.Builder
	b.WriteByte(q)
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == rune(q):
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\x%02x`, r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(q)
	return b.String()
}
