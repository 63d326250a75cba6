package consultation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"ophtha-dss/internal/decisiontree"
)

// Stored document shape, kept stable for sessions written by earlier versions:
//
//	{
//	  "current_path": ["yes", "no"],
//	  "current_question": "...",
//	  "answers": {"q1": {"question": "...", "answer": "yes", "timestamp": "..."}},
//	  "final_diagnosis_candidate": "...",
//	  "started_at": "...",
//	  "completed_at": "..."
//	}
type stateDoc struct {
	CurrentPath             []string             `json:"current_path"`
	CurrentQuestion         string               `json:"current_question"`
	Answers                 map[string]answerDoc `json:"answers"`
	FinalDiagnosisCandidate *string              `json:"final_diagnosis_candidate,omitempty"`
	StartedAt               string               `json:"started_at,omitempty"`
	CompletedAt             *string              `json:"completed_at,omitempty"`
}

// modelledKeys are the stateDoc keys. Anything else is carried through untouched.
var modelledKeys = map[string]bool{
	"current_path":              true,
	"current_question":          true,
	"answers":                   true,
	"final_diagnosis_candidate": true,
	"started_at":                true,
	"completed_at":              true,
}

type answerDoc struct {
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Earlier writers stored naive ISO-8601 timestamps without a zone; those are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func answerKey(i int) string {
	return "q" + strconv.Itoa(i+1)
}

func (s DiagnosisState) MarshalJSON() ([]byte, error) {
	doc := stateDoc{
		CurrentPath:     make([]string, len(s.CurrentPath)),
		CurrentQuestion: s.CurrentQuestion,
		Answers:         make(map[string]answerDoc, len(s.Answers)),
	}
	for i, a := range s.CurrentPath {
		doc.CurrentPath[i] = string(a)
	}
	for i, a := range s.Answers {
		doc.Answers[answerKey(i)] = answerDoc{
			Question:  a.Question,
			Answer:    string(a.Answer),
			Timestamp: formatTimestamp(a.Timestamp),
		}
	}
	if s.FinalDiagnosisCandidate != "" {
		c := s.FinalDiagnosisCandidate
		doc.FinalDiagnosisCandidate = &c
	}
	if !s.StartedAt.IsZero() {
		doc.StartedAt = formatTimestamp(s.StartedAt)
	}
	if s.CompletedAt != nil {
		c := formatTimestamp(*s.CompletedAt)
		doc.CompletedAt = &c
	}
	data, err := json.Marshal(doc)
	if err != nil || len(s.extra) == 0 {
		return data, err
	}

	merged := make(map[string]json.RawMessage, len(s.extra)+len(modelledKeys))
	for k, v := range s.extra {
		merged[k] = v
	}
	var own map[string]json.RawMessage
	if err := json.Unmarshal(data, &own); err != nil {
		return nil, err
	}
	for k, v := range own {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func (s *DiagnosisState) UnmarshalJSON(data []byte) error {
	var doc stateDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}

	out := DiagnosisState{
		CurrentPath:     make(decisiontree.Path, 0, len(doc.CurrentPath)),
		CurrentQuestion: doc.CurrentQuestion,
	}
	for i, step := range doc.CurrentPath {
		a, err := decisiontree.ParseAnswer(step)
		if err != nil {
			return fmt.Errorf("current_path[%d]: %w", i, err)
		}
		out.CurrentPath = append(out.CurrentPath, a)
	}

	keys := make([]string, 0, len(doc.Answers))
	for k := range doc.Answers {
		keys = append(keys, k)
	}
	sortAnswerKeys(keys)
	for _, k := range keys {
		raw := doc.Answers[k]
		answer, err := decisiontree.ParseAnswer(raw.Answer)
		if err != nil {
			return fmt.Errorf("answers.%s: %w", k, err)
		}
		a := AnsweredQuestion{Question: raw.Question, Answer: answer}
		if raw.Timestamp != "" {
			ts, err := parseTimestamp(raw.Timestamp)
			if err != nil {
				return fmt.Errorf("answers.%s: %w", k, err)
			}
			a.Timestamp = ts
		}
		out.Answers = append(out.Answers, a)
	}

	if doc.FinalDiagnosisCandidate != nil {
		out.FinalDiagnosisCandidate = *doc.FinalDiagnosisCandidate
	}
	if doc.StartedAt != "" {
		ts, err := parseTimestamp(doc.StartedAt)
		if err != nil {
			return fmt.Errorf("started_at: %w", err)
		}
		out.StartedAt = ts
	}
	if doc.CompletedAt != nil && *doc.CompletedAt != "" {
		ts, err := parseTimestamp(*doc.CompletedAt)
		if err != nil {
			return fmt.Errorf("completed_at: %w", err)
		}
		out.CompletedAt = &ts
	}

	for k, v := range all {
		if modelledKeys[k] {
			continue
		}
		if out.extra == nil {
			out.extra = make(map[string]json.RawMessage)
		}
		out.extra[k] = v
	}

	*s = out
	return nil
}

// sortAnswerKeys orders q1, q2, ..., q10 numerically. Keys outside that
// pattern sort after them, lexically.
func sortAnswerKeys(keys []string) {
	index := func(k string) (int, bool) {
		if !strings.HasPrefix(k, "q") {
			return 0, false
		}
		n, err := strconv.Atoi(k[1:])
		return n, err == nil
	}
	sort.Slice(keys, func(i, j int) bool {
		ni, oki := index(keys[i])
		nj, okj := index(keys[j])
		switch {
		case oki && okj:
			return ni < nj
		case oki != okj:
			return oki
		default:
			return keys[i] < keys[j]
		}
	})
}
