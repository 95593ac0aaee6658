// Package normalize turns an untrusted program payload into an analysis.Result.
//
// Extraction is lenient about individual fields and strict about the payload
// shape: a payload that is not a mapping fails, a mapping with missing or
// mistyped fields yields a fully defaulted Result. Table rows that are not
// mappings are kept under ScalarRowKey so the row count survives.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
)

const (
	DefaultTableName  = "Table"
	DefaultChartTitle = "Chart"
	// ScalarRowKey holds a table row that was not a mapping.
	ScalarRowKey = "value"
)

// Normalize validates payload and extracts a Result.
func Normalize(payload analysis.RawPayload) (analysis.Result, error) {
	switch payload.Kind() {
	case analysis.PayloadText:
		text, _ := payload.Text()
		fields, err := decode(text)
		if err != nil {
			return analysis.Result{}, err
		}
		return extract(fields), nil
	case analysis.PayloadStructured:
		fields, _ := payload.Structured()
		return extract(fields), nil
	case analysis.PayloadOther:
		return analysis.Result{}, &analysis.NormalizationError{
			Kind:  analysis.NormalizationUnsupportedType,
			Cause: fmt.Errorf("payload of type %T is neither text nor a mapping", payload.Value()),
		}
	default:
		return analysis.Result{}, &analysis.NormalizationError{Kind: analysis.NormalizationNoOutput}
	}
}

func decode(text string) (map[string]any, error) {
	var decoded any
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	if err := dec.Decode(&decoded); err != nil {
		return nil, &analysis.NormalizationError{Kind: analysis.NormalizationInvalidEncoding, Cause: err}
	}
	if dec.More() {
		return nil, &analysis.NormalizationError{
			Kind:  analysis.NormalizationInvalidEncoding,
			Cause: fmt.Errorf("trailing data after JSON value"),
		}
	}
	fields, ok := decoded.(map[string]any)
	if !ok {
		return nil, &analysis.NormalizationError{
			Kind:  analysis.NormalizationNotMapping,
			Cause: fmt.Errorf("decoded %s, want an object", jsonKind(decoded)),
		}
	}
	return fields, nil
}

func extract(fields map[string]any) analysis.Result {
	result := analysis.NewResult(stringField(fields, "text", ""))

	for _, entry := range listField(fields, "tables") {
		result.Tables = append(result.Tables, table(entry))
	}
	for _, entry := range listField(fields, "charts") {
		result.Charts = append(result.Charts, chart(entry))
	}
	return result
}

func table(entry any) analysis.Table {
	out := analysis.Table{Name: DefaultTableName, Data: []map[string]any{}}
	fields, ok := entry.(map[string]any)
	if !ok {
		return out
	}
	out.Name = stringField(fields, "name", DefaultTableName)
	for _, row := range listField(fields, "data") {
		record, ok := row.(map[string]any)
		if !ok {
			record = map[string]any{ScalarRowKey: row}
		}
		out.Data = append(out.Data, record)
	}
	return out
}

func chart(entry any) analysis.Chart {
	out := analysis.Chart{Title: DefaultChartTitle}
	fields, ok := entry.(map[string]any)
	if !ok {
		return out
	}
	out.Title = stringField(fields, "title", DefaultChartTitle)
	if desc, ok := fields["description"].(string); ok {
		out.Description = &desc
	}
	return out
}

func stringField(fields map[string]any, key, fallback string) string {
	if value, ok := fields[key].(string); ok {
		return value
	}
	return fallback
}

func listField(fields map[string]any, key string) []any {
	list, _ := fields[key].([]any)
	return list
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "an array"
	case string:
		return "a string"
	case float64:
		return "a number"
	case bool:
		return "a boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Encode renders result in the text payload form accepted by Normalize.
func Encode(result analysis.Result) (string, error) {
	tables := make([]analysis.Table, len(result.Tables))
	for i, t := range result.Tables {
		if t.Data == nil {
			t.Data = []map[string]any{}
		}
		tables[i] = t
	}
	result.Tables = tables
	if result.Charts == nil {
		result.Charts = []analysis.Chart{}
	}
	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(data), nil
}
