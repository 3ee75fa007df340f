package chat

import (
	"context"
	"errors"
	"testing"
)

type stubLLM struct {
	text    string
	err     error
	calls   int
	lastReq LLMRequest
}

func (s *stubLLM) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return LLMResponse{}, s.err
	}
	return LLMResponse{Text: s.text}, nil
}

func TestContainsEmergency(t *testing.T) {
	tests := []struct {
		message string
		want    bool
	}{
		{"I have chest pain", true},
		{"my father is unconscious", true},
		{"I can't breathe properly", true},
		{"I think it's a heart attack", true},
		{"I need paracetamol", false},
		{"my chest feels fine", false},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			if got := ContainsEmergency(tt.message); got != tt.want {
				t.Errorf("ContainsEmergency(%q) = %v, want %v", tt.message, got, tt.want)
			}
		})
	}
}

func TestClassifyKeywordFastPaths(t *testing.T) {
	// The oracle is broken on purpose: keyword-resolvable messages must
	// never reach it, let alone depend on it.
	llm := &stubLLM{err: errors.New("unreachable")}
	c := NewIntentClassifier(llm, "test-model", ClassifierConfig{})
	ctx := context.Background()

	tests := []struct {
		name    string
		message string
		want    Intent
	}{
		{"emergency beats order phrasing", "I need to order something, severe bleeding here", IntentEmergency},
		{"symptom beats order phrasing", "I want something for my allergy", IntentRecommend},
		{"feel", "I feel dizzy today", IntentRecommend},
		{"pain", "I have knee pain", IntentRecommend},
		{"headache", "I have a headache", IntentRecommend},
		{"skin", "my skin is itchy", IntentRecommend},
		{"plain order", "order paracetamol", IntentOrder},
		{"give me", "give me paracetamol", IntentOrder},
		{"i need", "i need paracetamol", IntentOrder},
		{"checkout", "show me my orders", IntentCheckout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(ctx, tt.message)
			if got.Intent != tt.want {
				t.Errorf("Classify(%q).Intent = %q, want %q", tt.message, got.Intent, tt.want)
			}
			if got.Source != "keyword" {
				t.Errorf("Classify(%q).Source = %q, want keyword", tt.message, got.Source)
			}
		})
	}

	if llm.calls != 0 {
		t.Errorf("oracle was called %d times for keyword-resolvable messages", llm.calls)
	}
}

func TestClassifyConfiguredWordLists(t *testing.T) {
	c := NewIntentClassifier(nil, "", ClassifierConfig{OrderWords: []string{"gimme"}})
	ctx := context.Background()

	if got := c.Classify(ctx, "gimme paracetamol"); got.Intent != IntentOrder {
		t.Errorf("configured order word: Intent = %q, want order", got.Intent)
	}
	// Lists that were not overridden keep their defaults.
	if got := c.Classify(ctx, "I have a headache"); got.Intent != IntentRecommend {
		t.Errorf("default symptom word: Intent = %q, want recommend", got.Intent)
	}
}

func TestClassifyOrderQuantityExtraction(t *testing.T) {
	c := NewIntentClassifier(nil, "", ClassifierConfig{})
	got := c.Classify(context.Background(), "order 3 packs of ibuprofen")
	if got.Intent != IntentOrder {
		t.Fatalf("Intent = %q, want order", got.Intent)
	}
	if got.Quantity == nil || *got.Quantity != 3 {
		t.Errorf("Quantity = %v, want 3", got.Quantity)
	}
}

func TestClassifyOracle(t *testing.T) {
	llm := &stubLLM{text: `Sure! {"intent": "order", "medicine": "aspirin", "quantity": 2}`}
	c := NewIntentClassifier(llm, "test-model", ClassifierConfig{})

	got := c.Classify(context.Background(), "aspirin pls, two of them")
	if got.Intent != IntentOrder {
		t.Fatalf("Intent = %q, want order", got.Intent)
	}
	if got.Medicine != "aspirin" {
		t.Errorf("Medicine = %q, want aspirin", got.Medicine)
	}
	if got.Quantity == nil || *got.Quantity != 2 {
		t.Errorf("Quantity = %v, want 2", got.Quantity)
	}
	if got.Source != "oracle" {
		t.Errorf("Source = %q, want oracle", got.Source)
	}
}

func TestClassifyOracleFailuresDegradeToUnknown(t *testing.T) {
	tests := []struct {
		name string
		llm  *stubLLM
	}{
		{"call error", &stubLLM{err: errors.New("throttled")}},
		{"no json", &stubLLM{text: "I think they want to order aspirin"}},
		{"broken json", &stubLLM{text: `{"intent": "order",`}},
		{"unlisted intent", &stubLLM{text: `{"intent": "make_coffee"}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewIntentClassifier(tt.llm, "test-model", ClassifierConfig{})
			got := c.Classify(context.Background(), "hmm aspirin maybe")
			if got.Intent != IntentUnknown {
				t.Errorf("Intent = %q, want unknown", got.Intent)
			}
		})
	}
}

func TestSymptomSearchTerms(t *testing.T) {
	if terms := SymptomSearchTerms("allergy"); len(terms) == 0 {
		t.Error("curated symptom returned no search terms")
	}
	if terms := SymptomSearchTerms("sore throat"); len(terms) != 1 || terms[0] != "sore throat" {
		t.Errorf("uncurated symptom = %v, want the symptom itself", terms)
	}
	if terms := SymptomSearchTerms(""); terms != nil {
		t.Errorf("empty symptom = %v, want nil", terms)
	}
}
