package grading

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

type PayloadShape int

const (
	// ShapeUnknown covers empty, unparseable, and unrecognized payloads.
	// Every question decodes to "no selection" under it.
	ShapeUnknown PayloadShape = iota
	ShapeSequence
	ShapeMap
)

// RawSelection is what a raw payload claims the student picked for one
// question. Either field may be empty; OptionID takes precedence during
// resolution.
type RawSelection struct {
	OptionID string
	Letter   string
}

type rawRecord struct {
	questionID string
	number     int
	optionID   string
	letter     string
}

// Payload is a raw answer payload with its shape inferred structurally.
// Capture pipelines never tagged the variant, so a JSON array is the
// record sequence shape and a JSON object is the legacy number-keyed
// map shape.
type Payload struct {
	Shape PayloadShape

	// Malformed distinguishes a payload that was present but
	// unrecognizable from one that was never captured; both decode
	// every question to "no selection".
	Malformed bool

	records  []rawRecord
	byNumber map[string]string
}

func ParsePayload(raw []byte) Payload {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return Payload{Shape: ShapeUnknown}
	}

	switch trimmed[0] {
	case '[':
		var arr []map[string]interface{}
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return Payload{Shape: ShapeUnknown, Malformed: true}
		}
		records := make([]rawRecord, 0, len(arr))
		for _, item := range arr {
			records = append(records, decodeRecord(item))
		}
		return Payload{Shape: ShapeSequence, records: records}
	case '{':
		var obj map[string]interface{}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return Payload{Shape: ShapeUnknown, Malformed: true}
		}
		byNumber := make(map[string]string, len(obj))
		for k, v := range obj {
			key := strings.TrimSpace(k)
			if key == "" {
				continue
			}
			byNumber[key] = anyToID(v)
		}
		return Payload{Shape: ShapeMap, byNumber: byNumber}
	default:
		return Payload{Shape: ShapeUnknown, Malformed: true}
	}
}

// Selection finds the raw selection for a question. Sequence payloads
// are scanned in order and the first record matching either the
// question id or the 1-based number wins; partial matches from later
// records are never merged in. Map payloads are keyed by the stringified
// number and always hold option ids.
func (p Payload) Selection(questionID string, number int) *RawSelection {
	switch p.Shape {
	case ShapeSequence:
		for _, rec := range p.records {
			idMatch := rec.questionID != "" && rec.questionID == questionID
			numberMatch := rec.number > 0 && rec.number == number
			if !idMatch && !numberMatch {
				continue
			}
			return &RawSelection{OptionID: rec.optionID, Letter: rec.letter}
		}
		return nil
	case ShapeMap:
		v, ok := p.byNumber[strconv.Itoa(number)]
		if !ok || v == "" {
			return nil
		}
		return &RawSelection{OptionID: v}
	default:
		return nil
	}
}

func decodeRecord(m map[string]interface{}) rawRecord {
	return rawRecord{
		questionID: firstID(m, "question_id", "questionId"),
		number:     firstNumber(m, "number", "question_number"),
		optionID:   firstID(m, "selected_option_id", "selectedOptionId"),
		letter:     firstID(m, "selectedOption", "selected_option"),
	}
}

func firstID(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		if s := anyToID(v); s != "" {
			return s
		}
	}
	return ""
}

func firstNumber(m map[string]interface{}, keys ...string) int {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			if n := int(t); float64(n) == t && n > 0 {
				return n
			}
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil && n > 0 {
				return n
			}
		}
	}
	return 0
}

// anyToID tolerates the numeric identifiers some capture pipelines
// emitted where strings were expected.
func anyToID(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if float64(int64(t)) == t {
			return strconv.FormatInt(int64(t), 10)
		}
		return ""
	default:
		return ""
	}
}
