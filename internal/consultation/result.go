package consultation

import (
	"ophtha-dss/internal/decisiontree"
	"ophtha-dss/internal/recommendation"
)

// Result is the display-ready summary of a consultation.
type Result struct {
	Consultation       *Consultation      `json:"consultation"`
	Diagnosis          string             `json:"primary_diagnosis"`
	Confidence         int                `json:"confidence"`
	History            []AnsweredQuestion `json:"qa_history"`
	Symptoms           []SymptomEvidence  `json:"symptoms_evidence"`
	SupportingSymptoms []string           `json:"supporting_symptoms"`
	Recommendations    recommendation.Set `json:"recommendations"`
}

const maxSupportingSymptoms = 3

func buildResult(c *Consultation, diagnosis string, recs recommendation.Lookup) *Result {
	answers := c.DiagnosisState.Answers
	r := &Result{
		Consultation:       c,
		Diagnosis:          diagnosis,
		Confidence:         confidence(len(answers)),
		History:            append([]AnsweredQuestion{}, answers...),
		Symptoms:           make([]SymptomEvidence, 0, len(answers)),
		SupportingSymptoms: []string{},
		Recommendations:    recs.For(diagnosis),
	}
	for _, a := range answers {
		present := a.Answer == decisiontree.Yes
		r.Symptoms = append(r.Symptoms, SymptomEvidence{Name: a.Question, Present: present})
		if present && len(r.SupportingSymptoms) < maxSupportingSymptoms {
			r.SupportingSymptoms = append(r.SupportingSymptoms, a.Question)
		}
	}
	return r
}

// confidence grows by two points per answered question from a base of 80,
// capped at 95. No answers means no confidence.
func confidence(answered int) int {
	if answered == 0 {
		return 0
	}
	if c := 80 + 2*answered; c < 95 {
		return c
	}
	return 95
}
