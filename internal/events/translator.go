// Package events turns raw shipping lifecycle messages into typed intents.
package events

import (
	"bytes"
	"embed"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Operation names carried in the event envelope
const (
	OperationCreate = "Create"
	OperationDelete = "Delete"
)

const schemaBaseURL = "https://shipping-api.local/schemas/"

//go:embed schemas/*.json
var schemaFS embed.FS

// Intent is a validated request to mutate the shipment store.
// It is either a CreateIntent or a DeleteByOrderIntent.
type Intent interface {
	Operation() string
	isIntent()
}

// CreateIntent asks for a new shipment for an order
type CreateIntent struct {
	UserID          string
	OrderID         string
	ShippingAddress string
	// MessageID is the transport's id for the delivery, if any. Set by the consumer, not the translator.
	MessageID string
}

func (CreateIntent) Operation() string { return OperationCreate }
func (CreateIntent) isIntent()         {}

// DeleteByOrderIntent asks for the shipment of an order to be removed
type DeleteByOrderIntent struct {
	OrderID string
}

func (DeleteByOrderIntent) Operation() string { return OperationDelete }
func (DeleteByOrderIntent) isIntent()         {}

// TranslationFailure explains why a payload could not become an intent
type TranslationFailure struct {
	Reason string
	// Operation is the envelope's Operation value when one could be read
	Operation string
}

func (f *TranslationFailure) Error() string {
	return f.Reason
}

// Result holds exactly one of Intent or Failure
type Result struct {
	Intent  Intent
	Failure *TranslationFailure
}

// OK reports whether translation produced an intent
func (r Result) OK() bool {
	return r.Failure == nil && r.Intent != nil
}

// Operation returns the operation name for metrics and logs, "" when unknown
func (r Result) Operation() string {
	if r.Intent != nil {
		return r.Intent.Operation()
	}
	if r.Failure != nil {
		return r.Failure.Operation
	}
	return ""
}

// Translator validates payloads against the embedded event schemas
type Translator struct {
	envelope   *jsonschema.Schema
	operations map[string]*jsonschema.Schema
}

// NewTranslator compiles the embedded schemas
func NewTranslator() (*Translator, error) {
	compiler := jsonschema.NewCompiler()

	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("failed to list event schemas: %w", err)
	}
	for _, entry := range entries {
		raw, err := schemaFS.ReadFile("schemas/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", entry.Name(), err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to parse schema %s: %w", entry.Name(), err)
		}
		if err := compiler.AddResource(schemaBaseURL+entry.Name(), doc); err != nil {
			return nil, fmt.Errorf("failed to add schema %s: %w", entry.Name(), err)
		}
	}

	compile := func(name string) (*jsonschema.Schema, error) {
		s, err := compiler.Compile(schemaBaseURL + name)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		return s, nil
	}

	t := &Translator{operations: make(map[string]*jsonschema.Schema)}
	if t.envelope, err = compile("envelope.json"); err != nil {
		return nil, err
	}
	if t.operations[OperationCreate], err = compile("create.json"); err != nil {
		return nil, err
	}
	if t.operations[OperationDelete], err = compile("delete.json"); err != nil {
		return nil, err
	}
	return t, nil
}

// MustNewTranslator is NewTranslator that panics on error. The schemas are
// compiled into the binary, so an error here is a build defect.
func MustNewTranslator() *Translator {
	t, err := NewTranslator()
	if err != nil {
		panic(err)
	}
	return t
}

// Translate maps a raw message body to an intent or a failure. It never
// returns a partially filled intent and performs no I/O.
func (t *Translator) Translate(body []byte) Result {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return failure("", "malformed payload: %v", err)
	}
	if err := t.envelope.Validate(doc); err != nil {
		return failure("", "malformed payload: %s", flatten(err))
	}

	operation, _ := doc.(map[string]any)["Operation"].(string)
	schema, ok := t.operations[operation]
	if !ok {
		return failure(operation, "unsupported operation %q", operation)
	}
	if err := schema.Validate(doc); err != nil {
		return failure(operation, "invalid %s payload: %s", operation, flatten(err))
	}

	// the intent is read from the validated document so no field can bypass the schema
	fields := doc.(map[string]any)
	switch operation {
	case OperationCreate:
		return Result{Intent: CreateIntent{
			UserID:          stringField(fields, "UserId"),
			OrderID:         stringField(fields, "OrderId"),
			ShippingAddress: stringField(fields, "ShippingAddress"),
		}}
	default:
		return Result{Intent: DeleteByOrderIntent{OrderID: stringField(fields, "OrderId")}}
	}
}

func stringField(fields map[string]any, key string) string {
	v, _ := fields[key].(string)
	return v
}

func failure(operation, format string, args ...any) Result {
	return Result{Failure: &TranslationFailure{
		Reason:    fmt.Sprintf(format, args...),
		Operation: operation,
	}}
}

// flatten renders a multi-line validation error on one line
func flatten(err error) string {
	lines := strings.Split(strings.TrimSpace(err.Error()), "\n")
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "- "))
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, "; ")
}
