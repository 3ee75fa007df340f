package chat

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
)

// Intent labels what the patient wants from a message.
type Intent string

const (
	IntentEmergency Intent = "emergency"
	IntentRecommend Intent = "recommend"
	IntentOrder     Intent = "order"
	IntentCheckout  Intent = "checkout"
	IntentUnknown   Intent = "unknown"
)

// IntentResult is the classifier's structured reading of one message.
type IntentResult struct {
	Intent          Intent
	Symptom         string
	Medicine        string
	Quantity        *int
	DosageFrequency float64
	Source          string
}

// defaultEmergencyPhrases are hard red flags. Any hit short-circuits the
// whole turn before classification, ordering, or pending-order handling.
var defaultEmergencyPhrases = []string{
	"chest pain",
	"breathing difficulty",
	"difficulty breathing",
	"can't breathe",
	"cannot breathe",
	"severe bleeding",
	"unconscious",
	"heart attack",
	"stroke",
	"overdose",
}

// defaultSymptomWords flag a complaint. Detection is deliberately broad;
// SymptomSearchTerms narrows the wording into catalog search terms.
var defaultSymptomWords = []string{"feel", "pain", "tired", "headache", "allergy", "skin"}

var defaultOrderWords = []string{"give me", "i need", "order", "buy"}

var defaultCheckoutWords = []string{"checkout", "check out", "my orders", "order history", "cart"}

// symptomKeywords map complaint phrases to catalog search terms.
var symptomKeywords = map[string][]string{
	"dry skin": {"moisturizer", "cream", "vitamin"},
	"skin":     {"moisturizer", "cream"},
	"pain":     {"paracetamol", "ibuprofen", "pain"},
	"headache": {"paracetamol", "ibuprofen", "pain"},
	"tired":    {"vitamin", "iron", "b12"},
	"allergy":  {"antihistamine", "cetirizine", "allergy"},
	"immune":   {"vitamin c", "zinc", "immune"},
	"omega":    {"omega", "fish oil"},
}

// ClassifierConfig carries the deterministic word lists. Zero-value fields
// fall back to the built-in defaults; deployments override them through
// configuration so the lists cannot drift between revisions.
type ClassifierConfig struct {
	EmergencyPhrases []string
	SymptomWords     []string
	OrderWords       []string
	CheckoutWords    []string
}

func (c ClassifierConfig) withDefaults() ClassifierConfig {
	if len(c.EmergencyPhrases) == 0 {
		c.EmergencyPhrases = defaultEmergencyPhrases
	}
	if len(c.SymptomWords) == 0 {
		c.SymptomWords = defaultSymptomWords
	}
	if len(c.OrderWords) == 0 {
		c.OrderWords = defaultOrderWords
	}
	if len(c.CheckoutWords) == 0 {
		c.CheckoutWords = defaultCheckoutWords
	}
	return c
}

// ContainsEmergency reports whether the message mentions a default red-flag
// phrase. Emergency detection always wins over every other reading.
func ContainsEmergency(message string) bool {
	return containsAny(strings.ToLower(message), defaultEmergencyPhrases)
}

func containsAny(lower string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

const classifierPrompt = `You are an intent classifier for a pharmacy ordering assistant. Classify the patient message into ONE intent. Respond with JSON only, no other text.

Intents:
- emergency: medical emergency or urgent danger to life
- recommend: describing a symptom and asking what to take
- order: wants to buy a specific medicine
- checkout: asking about their orders or wanting to complete a purchase
- unknown: anything else

Allowed JSON keys: intent, symptom, medicine, quantity, dosage_frequency.
- symptom: the complaint, only for recommend
- medicine: the product name as written by the patient, only for order
- quantity: integer number of packs if stated, else omit
- dosage_frequency: units per day if stated, else omit

Message: %s

Respond with: {"intent": "<intent>", "medicine": "...", "quantity": 2}`

// IntentClassifier resolves intents with deterministic keyword passes first
// and an LLM oracle for everything the keywords cannot settle.
type IntentClassifier struct {
	client  LLMClient
	modelID string
	cfg     ClassifierConfig
}

// NewIntentClassifier creates a classifier backed by the given LLM client.
// A nil client disables the oracle pass; keyword misses become unknown.
func NewIntentClassifier(client LLMClient, modelID string, cfg ClassifierConfig) *IntentClassifier {
	return &IntentClassifier{client: client, modelID: modelID, cfg: cfg.withDefaults()}
}

// Classify reads one message. Deterministic passes run in strict precedence
// order so an emergency mention can never be downgraded by order phrasing in
// the same message. Oracle failures degrade to unknown, never to an error.
func (c *IntentClassifier) Classify(ctx context.Context, message string) IntentResult {
	message = strings.TrimSpace(message)
	if message == "" {
		return IntentResult{Intent: IntentUnknown, Source: "keyword"}
	}
	lower := strings.ToLower(message)

	if containsAny(lower, c.cfg.EmergencyPhrases) {
		return IntentResult{Intent: IntentEmergency, Source: "keyword"}
	}

	// Symptom words carry the raw message forward; SymptomSearchTerms
	// turns it into catalog search terms later.
	if containsAny(lower, c.cfg.SymptomWords) {
		return IntentResult{Intent: IntentRecommend, Symptom: message, Source: "keyword"}
	}

	// Checkout before order: "order history" must not read as a purchase.
	if containsAny(lower, c.cfg.CheckoutWords) {
		return IntentResult{Intent: IntentCheckout, Source: "keyword"}
	}

	if containsAny(lower, c.cfg.OrderWords) {
		return IntentResult{
			Intent:   IntentOrder,
			Medicine: message,
			Quantity: firstQuantity(lower),
			Source:   "keyword",
		}
	}

	return c.classifyWithOracle(ctx, message)
}

func (c *IntentClassifier) classifyWithOracle(ctx context.Context, message string) IntentResult {
	unknown := IntentResult{Intent: IntentUnknown, Source: "oracle"}
	if c == nil || c.client == nil {
		unknown.Source = "keyword"
		return unknown
	}

	prompt := strings.Replace(classifierPrompt, "%s", message, 1)
	resp, err := c.client.Complete(ctx, LLMRequest{
		Model:     c.modelID,
		Messages:  []ChatMessage{{Role: ChatRoleUser, Content: prompt}},
		MaxTokens: 150,
	})
	if err != nil {
		return unknown
	}

	// The model may wrap the JSON in prose; take the outermost braces.
	content := strings.TrimSpace(resp.Text)
	startIdx := strings.Index(content, "{")
	endIdx := strings.LastIndex(content, "}")
	if startIdx < 0 || endIdx <= startIdx {
		return unknown
	}
	content = content[startIdx : endIdx+1]

	var parsed struct {
		Intent          string   `json:"intent"`
		Symptom         string   `json:"symptom"`
		Medicine        string   `json:"medicine"`
		Quantity        *int     `json:"quantity"`
		DosageFrequency *float64 `json:"dosage_frequency"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return unknown
	}

	result := IntentResult{Source: "oracle"}
	switch Intent(parsed.Intent) {
	case IntentEmergency, IntentRecommend, IntentOrder, IntentCheckout, IntentUnknown:
		result.Intent = Intent(parsed.Intent)
	default:
		return unknown
	}

	result.Symptom = strings.TrimSpace(parsed.Symptom)
	result.Medicine = strings.TrimSpace(parsed.Medicine)
	if parsed.Quantity != nil && *parsed.Quantity > 0 {
		result.Quantity = parsed.Quantity
	}
	if parsed.DosageFrequency != nil && *parsed.DosageFrequency > 0 {
		result.DosageFrequency = *parsed.DosageFrequency
	}
	return result
}

// SymptomSearchTerms returns the catalog search keywords for a symptom, or
// the symptom itself when it is not in the curated map.
func SymptomSearchTerms(symptom string) []string {
	symptom = strings.ToLower(strings.TrimSpace(symptom))
	if terms, ok := symptomKeywords[symptom]; ok {
		return terms
	}
	for known, terms := range symptomKeywords {
		if strings.Contains(symptom, known) {
			return terms
		}
	}
	if symptom == "" {
		return nil
	}
	return []string{symptom}
}

// firstQuantity pulls the first standalone integer out of a message.
func firstQuantity(lower string) *int {
	for _, tok := range strings.Fields(lower) {
		tok = strings.Trim(tok, ".,!?")
		if n, err := strconv.Atoi(tok); err == nil && n > 0 {
			return &n
		}
	}
	return nil
}
