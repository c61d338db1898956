package task

import (
	"encoding/json"
	"fmt"
)

// RequestKey derives the deduplication key of a request. Requests with the
// same key share one execution.
//
// A nil params yields id, a string yields id_<params>, and anything else is
// encoded as JSON (map keys sorted) and appended the same way.
func RequestKey(id string, params any) (string, error) {
	switch p := params.(type) {
	case nil:
		return id, nil
	case string:
		return id + "_" + p, nil
	}

	b, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnkeyableParams, err)
	}
	return id + "_" + string(b), nil
}

// selector picks the entries addressed by the cancellation and inspection
// methods. Without params it matches every request submitted under id;
// with params it matches the single request with that key.
type selector struct {
	id    string
	key   string
	byKey bool
}

func selectorOf(id string, params []any) (selector, bool) {
	if len(params) == 0 {
		return selector{id: id}, true
	}
	key, err := RequestKey(id, params[0])
	if err != nil {
		return selector{}, false
	}
	return selector{id: id, key: key, byKey: true}, true
}

func (s selector) matches(e *entry) bool {
	if s.byKey {
		return e.key == s.key
	}
	return e.id == s.id
}
