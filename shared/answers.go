package shared

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// AnswerSheet is an ordered mapping questionId -> selected answer text.
// Order is first-insertion order (the order the student answered in), which the
// backend expects to be preserved; re-selecting an answer for an already
// answered question overwrites the value but keeps the original position.
type AnswerSheet struct {
	order  []string
	values map[string]string
}

func NewAnswerSheet() *AnswerSheet {
	return &AnswerSheet{values: make(map[string]string)}
}

// Set records the selected answer for a question. Last write wins.
func (a *AnswerSheet) Set(questionID, answer string) {
	if a.values == nil {
		a.values = make(map[string]string)
	}
	if _, exists := a.values[questionID]; !exists {
		a.order = append(a.order, questionID)
	}
	a.values[questionID] = answer
}

func (a *AnswerSheet) Get(questionID string) (string, bool) {
	v, ok := a.values[questionID]
	return v, ok
}

func (a *AnswerSheet) Len() int {
	return len(a.order)
}

// Map returns a plain copy of the mapping, without ordering.
func (a *AnswerSheet) Map() map[string]string {
	m := make(map[string]string, len(a.values))
	for k, v := range a.values {
		m[k] = v
	}
	return m
}

// Order returns the question ids in answer order.
func (a *AnswerSheet) Order() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// Clone returns an independent copy of the sheet.
func (a *AnswerSheet) Clone() *AnswerSheet {
	c := NewAnswerSheet()
	for _, qid := range a.order {
		c.Set(qid, a.values[qid])
	}
	return c
}

// MarshalJSON writes the sheet as a JSON object with keys in insertion order.
func (a *AnswerSheet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, qid := range a.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(qid)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(a.values[qid])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping the key order it appears in.
func (a *AnswerSheet) UnmarshalJSON(data []byte) error {
	a.order = nil
	a.values = make(map[string]string)

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("answers: expected JSON object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("answers: non-string key %v", keyTok)
		}
		var val string
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("answers: value for %q: %w", key, err)
		}
		a.Set(key, val)
	}
	// consume closing brace
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
