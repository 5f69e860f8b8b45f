package recordstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jmespath/go-jmespath"
)

const (
	idField       = "$id"
	revisionField = "$revision"
)

// evaluator caches compiled JMESPath expressions
type evaluator struct {
	cache map[string]*jmespath.JMESPath
	mu    sync.RWMutex
}

func newEvaluator() *evaluator {
	return &evaluator{cache: make(map[string]*jmespath.JMESPath)}
}

func (e *evaluator) evaluate(expression string, data any) (any, error) {
	compiled, err := e.getOrCompile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
	}

	result, err := compiled.Search(data)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", expression, err)
	}
	return result, nil
}

func (e *evaluator) getOrCompile(expression string) (*jmespath.JMESPath, error) {
	e.mu.RLock()
	compiled, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	compiled, err := jmespath.Compile(expression)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = compiled
	e.mu.Unlock()
	return compiled, nil
}

// decodePage pulls records and the total count out of a response body.
func (e *evaluator) decodePage(body any, recordsPath, totalCountPath string) (*Page, error) {
	raw, err := e.evaluate(recordsPath, body)
	if err != nil {
		return nil, err
	}
	items, ok := raw.([]any)
	if !ok && raw != nil {
		return nil, fmt.Errorf("records at %q are %T, not a list", recordsPath, raw)
	}

	page := &Page{Records: make([]Record, 0, len(items))}
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("record %d is %T, not an object", i, item)
		}
		record, err := flattenRecord(obj)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		page.Records = append(page.Records, record)
	}

	if totalCountPath != "" {
		total, err := e.evaluate(totalCountPath, body)
		if err != nil {
			return nil, err
		}
		if total != nil {
			n, err := strconv.Atoi(toString(total))
			if err != nil {
				return nil, fmt.Errorf("total count %v is not a number", total)
			}
			page.TotalCount = &n
		}
	}

	return page, nil
}

// flattenRecord turns {"code": {"type": "...", "value": ...}} objects into code -> string.
func flattenRecord(obj map[string]any) (Record, error) {
	record := Record{Fields: make(map[string]string, len(obj))}
	for code, raw := range obj {
		value := raw
		if field, ok := raw.(map[string]any); ok {
			if v, ok := field["value"]; ok {
				value = v
			}
		}
		str := toString(value)

		switch code {
		case idField:
			id, err := strconv.ParseInt(str, 10, 64)
			if err != nil {
				return Record{}, fmt.Errorf("invalid record id %q", str)
			}
			record.ID = id
		case revisionField:
			record.Revision, _ = strconv.ParseInt(str, 10, 64)
		default:
			record.Fields[code] = str
		}
	}
	if record.ID == 0 {
		return Record{}, fmt.Errorf("record has no %s", idField)
	}
	return record, nil
}

// toString renders a decoded JSON value as the text the ledgers compare on.
func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			// user and organization pickers carry {"code": ..., "name": ...}
			if obj, ok := item.(map[string]any); ok {
				if code, ok := obj["code"]; ok {
					parts = append(parts, toString(code))
					continue
				}
			}
			parts = append(parts, toString(item))
		}
		return strings.Join(parts, ",")
	default:
		b, _ := json.Marshal(val)
		return string(b)
	}
}
