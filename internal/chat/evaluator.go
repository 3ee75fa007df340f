package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pharmaflow/pharmacy-assistant/internal/catalog"
	"github.com/pharmaflow/pharmacy-assistant/pkg/logging"
)

// DecisionStatus is the evaluator's verdict on an order request.
type DecisionStatus string

const (
	StatusApproved DecisionStatus = "approved"
	StatusPartial  DecisionStatus = "partial"
	StatusRejected DecisionStatus = "rejected"
)

// ReasonKind types a rejection or restriction so the engine can route it
// without string matching. Untyped oracle rejections get a kind assigned
// from their wording by classifyReason.
type ReasonKind string

const (
	ReasonNone                ReasonKind = ""
	ReasonPrescriptionMissing ReasonKind = "prescription_missing"
	ReasonUnsafeQuantity      ReasonKind = "unsafe_quantity"
	ReasonOutOfStock          ReasonKind = "out_of_stock"
	ReasonRecentPurchase      ReasonKind = "recent_purchase"
	ReasonOther               ReasonKind = "other"
)

// failClosedReason is the reply when the compliance oracle cannot produce a
// usable verdict. No order ever proceeds on an unreadable verdict.
const failClosedReason = "internal safety system failed"

// Decision is the evaluator's full answer for one order request.
type Decision struct {
	Status               DecisionStatus
	Reason               string
	Kind                 ReasonKind
	ApprovedQuantity     int
	RequiresConfirmation bool
	Alternatives         []Recommendation
	Trace                []string
}

// EvalRequest is one order request under evaluation. Catalog is a snapshot
// of the rest of the product range, used for alternative suggestions when
// stock falls short. Symptoms are optional context for the oracle.
type EvalRequest struct {
	PatientID string
	Medicine  *catalog.Medicine
	Quantity  int
	Symptoms  string
	Catalog   []catalog.Medicine
}

// maxSuggestedAlternatives caps how many substitute products a stock-short
// decision carries.
const maxSuggestedAlternatives = 3

type prescriptionChecker interface {
	HasApproved(ctx context.Context, patientID, medicineName string) (bool, error)
}

const evaluatorPrompt = `You are a pharmacy compliance reviewer. Given an order request, decide whether it is safe to fulfil. Respond with JSON only, no other text.

Order request:
- medicine: %s
- prescription required: %t
- requested quantity: %d
- max safe quantity per order: %d
- units in stock: %d
- reported symptoms: %s

Rules:
- approved: the order is safe as requested
- partial: only a smaller quantity is safe; include it as approved_quantity
- rejected: the order must not proceed; explain why in reason

Respond with: {"status": "approved|partial|rejected", "reason": "...", "approved_quantity": 0}`

// Evaluator applies deterministic safety gates first and consults the LLM
// oracle only for requests that pass them. Oracle failures reject the order.
type Evaluator struct {
	client  LLMClient
	rx      prescriptionChecker
	modelID string
	logger  *logging.Logger
}

// NewEvaluator creates a compliance evaluator. The prescription checker is
// required; the LLM client may be nil, in which case gate-clean requests are
// approved deterministically.
func NewEvaluator(client LLMClient, rx prescriptionChecker, modelID string, logger *logging.Logger) *Evaluator {
	if rx == nil {
		panic("chat: prescription checker cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Evaluator{client: client, rx: rx, modelID: modelID, logger: logger}
}

// Evaluate decides whether an order may proceed. The deterministic gates
// run in a fixed order: prescription, dosage ceiling, stock. Whatever the
// gates let through goes to the oracle for a final verdict.
func (e *Evaluator) Evaluate(ctx context.Context, req EvalRequest) Decision {
	var trace []string
	note := func(format string, args ...any) {
		trace = append(trace, fmt.Sprintf(format, args...))
	}

	if req.Medicine == nil {
		note("gate: medicine missing")
		return Decision{
			Status: StatusRejected,
			Reason: "the requested medicine is not in our catalog",
			Kind:   ReasonOther,
			Trace:  trace,
		}
	}
	med := req.Medicine
	note("evaluating %s x%d", med.Name, req.Quantity)

	if med.PrescriptionRequired {
		has, err := e.rx.HasApproved(ctx, req.PatientID, med.Name)
		if err != nil {
			note("gate: prescription lookup failed: %v", err)
			return Decision{Status: StatusRejected, Reason: failClosedReason, Kind: ReasonOther, Trace: trace}
		}
		if !has {
			note("gate: prescription required, none on file")
			return Decision{
				Status: StatusRejected,
				Reason: fmt.Sprintf("%s requires a valid prescription. Please upload one before ordering.", med.Name),
				Kind:   ReasonPrescriptionMissing,
				Trace:  trace,
			}
		}
		note("gate: approved prescription on file")
	}

	if med.MaxSafeDosage > 0 && req.Quantity > med.MaxSafeDosage {
		note("gate: quantity %d exceeds safe limit %d", req.Quantity, med.MaxSafeDosage)
		return Decision{
			Status: StatusPartial,
			Reason: fmt.Sprintf("%d packs of %s exceeds the safe limit. I can offer %d instead.",
				req.Quantity, med.Name, med.MaxSafeDosage),
			Kind:                 ReasonUnsafeQuantity,
			ApprovedQuantity:     med.MaxSafeDosage,
			RequiresConfirmation: true,
			Trace:                trace,
		}
	}

	if med.Stock <= 0 {
		alts := alternativesFor(med, req.Catalog, maxSuggestedAlternatives)
		note("gate: out of stock, %d alternatives found", len(alts))
		return Decision{
			Status:               StatusRejected,
			Reason:               fmt.Sprintf("%s is currently out of stock.", med.Name),
			Kind:                 ReasonOutOfStock,
			RequiresConfirmation: len(alts) > 0,
			Alternatives:         alts,
			Trace:                trace,
		}
	}
	if req.Quantity > med.Stock {
		alts := alternativesFor(med, req.Catalog, maxSuggestedAlternatives)
		note("gate: only %d in stock, %d alternatives found", med.Stock, len(alts))
		return Decision{
			Status: StatusPartial,
			Reason: fmt.Sprintf("Only %d packs of %s are in stock. I can offer %d instead of %d.",
				med.Stock, med.Name, med.Stock, req.Quantity),
			Kind:                 ReasonOutOfStock,
			ApprovedQuantity:     med.Stock,
			RequiresConfirmation: true,
			Alternatives:         alts,
			Trace:                trace,
		}
	}

	return e.consultOracle(ctx, req, trace)
}

func (e *Evaluator) consultOracle(ctx context.Context, req EvalRequest, trace []string) Decision {
	med := req.Medicine
	if e.client == nil {
		trace = append(trace, "oracle: not configured, gates decide")
		return Decision{Status: StatusApproved, ApprovedQuantity: req.Quantity, Trace: trace}
	}

	symptoms := strings.TrimSpace(req.Symptoms)
	if symptoms == "" {
		symptoms = "none reported"
	}
	prompt := fmt.Sprintf(evaluatorPrompt,
		med.Name, med.PrescriptionRequired, req.Quantity, med.MaxSafeDosage, med.Stock, symptoms)

	resp, err := e.client.Complete(ctx, LLMRequest{
		Model:     e.modelID,
		Messages:  []ChatMessage{{Role: ChatRoleUser, Content: prompt}},
		MaxTokens: 200,
	})
	if err != nil {
		e.logger.Error("compliance oracle call failed", "medicine", med.Name, "error", err)
		trace = append(trace, "oracle: call failed, rejecting")
		return Decision{Status: StatusRejected, Reason: failClosedReason, Kind: ReasonOther, Trace: trace}
	}

	content := strings.TrimSpace(resp.Text)
	startIdx := strings.Index(content, "{")
	endIdx := strings.LastIndex(content, "}")
	if startIdx < 0 || endIdx <= startIdx {
		trace = append(trace, "oracle: no JSON in verdict, rejecting")
		return Decision{Status: StatusRejected, Reason: failClosedReason, Kind: ReasonOther, Trace: trace}
	}

	var verdict struct {
		Status           string `json:"status"`
		Reason           string `json:"reason"`
		ApprovedQuantity int    `json:"approved_quantity"`
	}
	if err := json.Unmarshal([]byte(content[startIdx:endIdx+1]), &verdict); err != nil {
		trace = append(trace, "oracle: unparseable verdict, rejecting")
		return Decision{Status: StatusRejected, Reason: failClosedReason, Kind: ReasonOther, Trace: trace}
	}

	switch DecisionStatus(verdict.Status) {
	case StatusApproved:
		trace = append(trace, "oracle: approved")
		return Decision{Status: StatusApproved, ApprovedQuantity: req.Quantity, Trace: trace}
	case StatusPartial:
		qty := verdict.ApprovedQuantity
		if qty <= 0 || qty >= req.Quantity {
			trace = append(trace, "oracle: partial verdict without a usable quantity, rejecting")
			return Decision{Status: StatusRejected, Reason: failClosedReason, Kind: ReasonOther, Trace: trace}
		}
		trace = append(trace, fmt.Sprintf("oracle: partial at %d", qty))
		return Decision{
			Status:               StatusPartial,
			Reason:               verdict.Reason,
			Kind:                 ReasonOther,
			ApprovedQuantity:     qty,
			RequiresConfirmation: true,
			Trace:                trace,
		}
	case StatusRejected:
		trace = append(trace, "oracle: rejected")
		reason := strings.TrimSpace(verdict.Reason)
		if reason == "" {
			reason = "this order cannot proceed"
		}
		return Decision{Status: StatusRejected, Reason: reason, Kind: classifyReason(reason), Trace: trace}
	default:
		trace = append(trace, "oracle: unknown status, rejecting")
		return Decision{Status: StatusRejected, Reason: failClosedReason, Kind: ReasonOther, Trace: trace}
	}
}

// alternativesFor picks up to limit in-stock products that share a
// therapeutic keyword with med, judged by name and description overlap.
func alternativesFor(med *catalog.Medicine, snapshot []catalog.Medicine, limit int) []Recommendation {
	if med == nil || limit <= 0 {
		return nil
	}
	terms := strings.Fields(strings.ToLower(med.Description))
	if nameTokens := strings.Fields(catalog.NormalizeQuery(med.Name)); len(nameTokens) > 0 {
		terms = append(terms, nameTokens[0])
	}

	var out []Recommendation
	for _, m := range snapshot {
		if m.Name == med.Name || m.Stock <= 0 {
			continue
		}
		hay := strings.ToLower(m.Name + " " + m.Description)
		for _, term := range terms {
			// Short tokens are connectives, not therapeutic purpose.
			if len(term) < 4 || !strings.Contains(hay, term) {
				continue
			}
			out = append(out, Recommendation{Name: m.Name, Price: m.Price, Description: m.Description})
			break
		}
		if len(out) == limit {
			break
		}
	}
	return out
}

// classifyReason types an untyped oracle rejection by its wording.
func classifyReason(reason string) ReasonKind {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "prescription") || strings.Contains(lower, "rx"):
		return ReasonPrescriptionMissing
	case strings.Contains(lower, "stock"):
		return ReasonOutOfStock
	case strings.Contains(lower, "dosage") || strings.Contains(lower, "quantity") || strings.Contains(lower, "unsafe"):
		return ReasonUnsafeQuantity
	default:
		return ReasonOther
	}
}
