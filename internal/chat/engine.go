package chat

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pharmaflow/pharmacy-assistant/internal/catalog"
	"github.com/pharmaflow/pharmacy-assistant/internal/orders"
	"github.com/pharmaflow/pharmacy-assistant/internal/pending"
	"github.com/pharmaflow/pharmacy-assistant/pkg/logging"
)

const emergencyMessage = "This sounds like a medical emergency. Please call your local emergency number (112/911) or go to the nearest emergency room immediately. I cannot help with emergencies."

type catalogAPI interface {
	GetByName(ctx context.Context, name string) (*catalog.Medicine, error)
	List(ctx context.Context) ([]catalog.Medicine, error)
	ListNames(ctx context.Context) ([]string, error)
	SearchByKeywords(ctx context.Context, keywords []string, limit int) ([]catalog.Medicine, error)
	DecrementStock(ctx context.Context, name string, quantity int) error
}

type pendingAPI interface {
	Set(ctx context.Context, patientID, medicineName string, quantity int) error
	Consume(ctx context.Context, patientID string) (*pending.Order, error)
}

type orderAPI interface {
	Insert(ctx context.Context, o orders.Order) (orders.Order, error)
	HasRecentPurchase(ctx context.Context, patientID, productName string, window time.Duration) (bool, error)
	ListByPatient(ctx context.Context, patientID string) ([]orders.Order, error)
}

type classifierAPI interface {
	Classify(ctx context.Context, message string) IntentResult
}

type evaluatorAPI interface {
	Evaluate(ctx context.Context, req EvalRequest) Decision
}

type historyAPI interface {
	Append(ctx context.Context, patientID string, messages ...ChatMessage) error
}

type refillAPI interface {
	DuePredictions(ctx context.Context, patientID string) ([]orders.Prediction, error)
}

// Metrics receives turn-level observations. All methods must be safe for
// concurrent use.
type Metrics interface {
	ObserveTurn(intent, responseType string)
	ObserveTurnLatency(intent string, seconds float64)
	ObserveOracleFailure(oracle string)
	ObserveOrderCommitted()
	ObserveStockConflict()
}

// EngineOptions tune dialogue behavior. Zero values fall back to defaults.
type EngineOptions struct {
	MatchThreshold       int
	DefaultQuantity      int
	MaxAlternatives      int
	RecentPurchaseWindow time.Duration
	EmergencyPhrases     []string
}

func (o EngineOptions) withDefaults() EngineOptions {
	if o.MatchThreshold <= 0 {
		o.MatchThreshold = catalog.DefaultMatchThreshold
	}
	if o.DefaultQuantity <= 0 {
		o.DefaultQuantity = 1
	}
	if o.MaxAlternatives <= 0 {
		o.MaxAlternatives = 3
	}
	if o.RecentPurchaseWindow <= 0 {
		o.RecentPurchaseWindow = 72 * time.Hour
	}
	if len(o.EmergencyPhrases) == 0 {
		o.EmergencyPhrases = defaultEmergencyPhrases
	}
	return o
}

// Engine runs one dialogue turn at a time: emergency screening, pending
// order resumption, intent dispatch, and the order pipeline.
type Engine struct {
	catalog    catalogAPI
	pending    pendingAPI
	orders     orderAPI
	classifier classifierAPI
	evaluator  evaluatorAPI
	history    historyAPI
	refill     refillAPI
	metrics    Metrics
	logger     *logging.Logger
	opts       EngineOptions
}

// NewEngine wires the dialogue engine. History, refill, and metrics are
// optional; everything else is required.
func NewEngine(
	cat catalogAPI,
	pend pendingAPI,
	ord orderAPI,
	cls classifierAPI,
	eval evaluatorAPI,
	history historyAPI,
	refill refillAPI,
	metrics Metrics,
	logger *logging.Logger,
	opts EngineOptions,
) *Engine {
	if cat == nil || pend == nil || ord == nil || cls == nil || eval == nil {
		panic("chat: engine dependencies cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		catalog:    cat,
		pending:    pend,
		orders:     ord,
		classifier: cls,
		evaluator:  eval,
		history:    history,
		refill:     refill,
		metrics:    metrics,
		logger:     logger,
		opts:       opts.withDefaults(),
	}
}

// HandleTurn processes one patient message and returns the reply.
func (e *Engine) HandleTurn(ctx context.Context, req TurnRequest) TurnResponse {
	message := strings.TrimSpace(req.Message)
	if req.PatientID == "" || message == "" {
		return TurnResponse{Type: ResponseError, Message: "patient_id and message are required"}
	}

	start := time.Now()
	resp, intent := e.handle(ctx, req.PatientID, message)

	if e.metrics != nil {
		e.metrics.ObserveTurn(string(intent), string(resp.Type))
		e.metrics.ObserveTurnLatency(string(intent), time.Since(start).Seconds())
	}
	e.recordHistory(ctx, req.PatientID, message, resp.Message)
	return resp
}

func (e *Engine) handle(ctx context.Context, patientID, message string) (TurnResponse, Intent) {
	// Emergencies preempt everything, including a pending order. The slot
	// stays untouched so the patient can come back to it later.
	if containsAny(strings.ToLower(message), e.opts.EmergencyPhrases) {
		return TurnResponse{
			Type:    ResponseEmergency,
			Message: emergencyMessage,
			Trace:   []string{"emergency phrase detected"},
		}, IntentEmergency
	}

	po, err := e.pending.Consume(ctx, patientID)
	if err != nil {
		e.logger.Error("failed to consume pending order", "patient_id", patientID, "error", err)
		return TurnResponse{Type: ResponseError, Message: "something went wrong, please try again"}, IntentUnknown
	}
	if po != nil {
		if resp, handled := e.resumePending(ctx, patientID, message, po); handled {
			return resp, IntentOrder
		}
		// The reply was not a resume token. The slot is already cleared by
		// Consume; the message gets a fresh classification below.
	}

	result := e.classifier.Classify(ctx, message)
	switch result.Intent {
	case IntentEmergency:
		return TurnResponse{
			Type:    ResponseEmergency,
			Message: emergencyMessage,
			Trace:   []string{"classifier flagged emergency"},
		}, IntentEmergency
	case IntentRecommend:
		return e.recommend(ctx, result, message), IntentRecommend
	case IntentCheckout:
		return e.checkout(ctx, patientID), IntentCheckout
	case IntentOrder:
		medicine := result.Medicine
		if medicine == "" {
			medicine = message
		}
		return e.orderFlow(ctx, orderAttempt{
			patientID:       patientID,
			medicineInput:   medicine,
			quantity:        result.Quantity,
			dosageFrequency: result.DosageFrequency,
		}), IntentOrder
	default:
		return TurnResponse{
			Type:    ResponseText,
			Message: "I can help you order medicine, suggest products for a symptom, or review your orders. What do you need?",
		}, IntentUnknown
	}
}

// resumePending interprets the reply to an earlier question about po. The
// slot was consumed atomically, so a duplicate delivery of the same message
// finds no pending order and cannot double-submit.
func (e *Engine) resumePending(ctx context.Context, patientID, message string, po *pending.Order) (TurnResponse, bool) {
	token := strings.ToLower(strings.Trim(strings.TrimSpace(message), ".!?"))

	if qty, err := strconv.Atoi(token); err == nil {
		if qty <= 0 {
			return TurnResponse{
				Type:    ResponseError,
				Message: fmt.Sprintf("The quantity must be a positive number. How many packs of %s would you like?", po.MedicineName),
			}, true
		}
		return e.orderFlow(ctx, orderAttempt{
			patientID:     patientID,
			medicineInput: po.MedicineName,
			exactName:     true,
			quantity:      &qty,
		}), true
	}

	switch token {
	case "option a", "a", "proceed", "yes":
		qty := po.Quantity
		if qty <= 0 {
			qty = e.opts.DefaultQuantity
		}
		return e.orderFlow(ctx, orderAttempt{
			patientID:     patientID,
			medicineInput: po.MedicineName,
			exactName:     true,
			quantity:      &qty,
			confirmed:     true,
		}), true
	case "option b", "b", "modify", "change":
		// The slot is already consumed; a modify reply leaves it cleared
		// so the next message starts a fresh order from scratch.
		return TurnResponse{
			Type:    ResponseText,
			Message: fmt.Sprintf("No problem, I've set the %s order aside. Tell me what you'd like instead.", po.MedicineName),
		}, true
	case "option c", "c", "cancel", "no":
		return TurnResponse{
			Type:    ResponseText,
			Message: fmt.Sprintf("No problem, I've cancelled the %s order. Anything else?", po.MedicineName),
		}, true
	}

	return TurnResponse{}, false
}

type orderAttempt struct {
	patientID       string
	medicineInput   string
	exactName       bool
	quantity        *int
	dosageFrequency float64
	confirmed       bool
}

func (e *Engine) orderFlow(ctx context.Context, attempt orderAttempt) TurnResponse {
	var trace []string

	med, resp, ok := e.resolveMedicine(ctx, attempt, &trace)
	if !ok {
		return resp
	}

	if attempt.quantity == nil {
		if err := e.pending.Set(ctx, attempt.patientID, med.Name, 0); err != nil {
			e.logger.Error("failed to save pending order", "patient_id", attempt.patientID, "error", err)
			return TurnResponse{Type: ResponseError, Message: "something went wrong, please try again"}
		}
		return TurnResponse{
			Type:    ResponseAskQuantity,
			Message: fmt.Sprintf("How many packs of %s would you like? Reply with a number.", med.Name),
			Trace:   trace,
		}
	}
	quantity := *attempt.quantity

	if attempt.confirmed {
		trace = append(trace, "patient confirmed, safety review already done")
		return e.commit(ctx, attempt, med, quantity, trace)
	}

	recent, err := e.orders.HasRecentPurchase(ctx, attempt.patientID, med.Name, e.opts.RecentPurchaseWindow)
	if err != nil {
		e.logger.Error("recent purchase check failed", "patient_id", attempt.patientID, "error", err)
		return TurnResponse{Type: ResponseError, Message: "something went wrong, please try again"}
	}
	if recent {
		trace = append(trace, "recent purchase of the same product")
		return e.askConfirmation(ctx, attempt.patientID, med.Name, quantity,
			fmt.Sprintf("You bought %s in the last few days.", med.Name), nil, trace)
	}

	// The evaluator sees the rest of the catalog so it can suggest
	// alternatives when stock falls short.
	snapshot, err := e.catalog.List(ctx)
	if err != nil {
		e.logger.Warn("catalog snapshot failed, evaluating without alternatives", "error", err)
	}

	decision := e.evaluator.Evaluate(ctx, EvalRequest{
		PatientID: attempt.patientID,
		Medicine:  med,
		Quantity:  quantity,
		Catalog:   snapshot,
	})
	trace = append(trace, decision.Trace...)

	if decision.Reason == failClosedReason && e.metrics != nil {
		e.metrics.ObserveOracleFailure("compliance")
	}

	switch {
	case decision.RequiresConfirmation:
		qty := decision.ApprovedQuantity
		if qty <= 0 {
			qty = quantity
		}
		return e.askConfirmation(ctx, attempt.patientID, med.Name, qty, decision.Reason, decision.Alternatives, trace)
	case decision.Status == StatusRejected:
		return e.routeRejection(decision, trace)
	default:
		qty := decision.ApprovedQuantity
		if qty <= 0 {
			qty = quantity
		}
		return e.commit(ctx, attempt, med, qty, trace)
	}
}

func (e *Engine) resolveMedicine(ctx context.Context, attempt orderAttempt, trace *[]string) (*catalog.Medicine, TurnResponse, bool) {
	if attempt.exactName {
		med, err := e.catalog.GetByName(ctx, attempt.medicineInput)
		if err != nil {
			e.logger.Error("failed to load medicine", "name", attempt.medicineInput, "error", err)
			return nil, TurnResponse{Type: ResponseError, Message: "something went wrong, please try again"}, false
		}
		return med, TurnResponse{}, true
	}

	names, err := e.catalog.ListNames(ctx)
	if err != nil {
		e.logger.Error("failed to list catalog names", "error", err)
		return nil, TurnResponse{Type: ResponseError, Message: "something went wrong, please try again"}, false
	}

	name, score, found := catalog.Match(attempt.medicineInput, names, e.opts.MatchThreshold)
	if !found {
		return nil, TurnResponse{
			Type:    ResponseError,
			Message: fmt.Sprintf("I couldn't find a medicine matching %q in our catalog. Could you check the spelling?", strings.TrimSpace(attempt.medicineInput)),
			Trace:   []string{fmt.Sprintf("no match above threshold (best score %d)", score)},
		}, false
	}
	*trace = append(*trace, fmt.Sprintf("matched %q to %s (score %d)", attempt.medicineInput, name, score))

	med, err := e.catalog.GetByName(ctx, name)
	if err != nil {
		e.logger.Error("failed to load matched medicine", "name", name, "error", err)
		return nil, TurnResponse{Type: ResponseError, Message: "something went wrong, please try again"}, false
	}
	return med, TurnResponse{}, true
}

func (e *Engine) askConfirmation(ctx context.Context, patientID, medicineName string, quantity int, reason string, alts []Recommendation, trace []string) TurnResponse {
	if err := e.pending.Set(ctx, patientID, medicineName, quantity); err != nil {
		e.logger.Error("failed to save pending order", "patient_id", patientID, "error", err)
		return TurnResponse{Type: ResponseError, Message: "something went wrong, please try again"}
	}

	var b strings.Builder
	if reason != "" {
		b.WriteString(reason)
		b.WriteString(" ")
	}
	if len(alts) > 0 {
		b.WriteString("You could consider the alternatives below, or: ")
	}
	fmt.Fprintf(&b, "Option A: proceed with %d pack(s) of %s. Option B: modify the order. Option C: cancel.", quantity, medicineName)

	return TurnResponse{Type: ResponseText, Message: b.String(), Recommendations: alts, Trace: trace}
}

func (e *Engine) routeRejection(decision Decision, trace []string) TurnResponse {
	switch decision.Kind {
	case ReasonPrescriptionMissing:
		return TurnResponse{Type: ResponsePrescriptionRequired, Message: decision.Reason, Trace: trace}
	default:
		resp := TurnResponse{Type: ResponseSafetyBlock, Message: decision.Reason, Trace: trace}
		if len(decision.Alternatives) > 0 {
			resp.Recommendations = decision.Alternatives
			resp.Message += " You could consider these alternatives:"
		}
		return resp
	}
}

func (e *Engine) commit(ctx context.Context, attempt orderAttempt, med *catalog.Medicine, quantity int, trace []string) TurnResponse {
	// The decrement re-checks stock at write time. Losing the race here
	// means another order drained the stock between evaluation and commit.
	if err := e.catalog.DecrementStock(ctx, med.Name, quantity); err != nil {
		if errors.Is(err, catalog.ErrInsufficientStock) {
			if e.metrics != nil {
				e.metrics.ObserveStockConflict()
			}
			trace = append(trace, "stock conflict at commit")
			return TurnResponse{
				Type:    ResponseSafetyBlock,
				Message: fmt.Sprintf("%s sold out while I was processing your order. Nothing was charged.", med.Name),
				Trace:   trace,
			}
		}
		e.logger.Error("stock decrement failed", "medicine", med.Name, "error", err)
		return TurnResponse{Type: ResponseError, Message: "something went wrong, please try again"}
	}

	total := math.Round(float64(quantity)*med.Price*100) / 100
	order, err := e.orders.Insert(ctx, orders.Order{
		PatientID:       attempt.patientID,
		ProductName:     med.Name,
		Quantity:        quantity,
		TotalPrice:      total,
		DosageFrequency: attempt.dosageFrequency,
	})
	if err != nil {
		// Stock is already decremented; surface the failure loudly rather
		// than pretending the purchase completed.
		e.logger.Error("order insert failed after stock decrement",
			"patient_id", attempt.patientID, "medicine", med.Name, "error", err)
		return TurnResponse{Type: ResponseError, Message: "something went wrong recording your order, please contact support"}
	}

	if e.metrics != nil {
		e.metrics.ObserveOrderCommitted()
	}
	trace = append(trace, fmt.Sprintf("order %s committed", order.ID))

	message := fmt.Sprintf("Order confirmed: %d pack(s) of %s for %.2f.", quantity, med.Name, total)
	if hint := e.refillHint(ctx, attempt.patientID, med.Name); hint != "" {
		message += " " + hint
	}

	return TurnResponse{
		Type:    ResponseOrderSuccess,
		Message: message,
		Order: &OrderData{
			Product:    med.Name,
			Quantity:   quantity,
			TotalPrice: total,
		},
		Trace: trace,
	}
}

func (e *Engine) recommend(ctx context.Context, result IntentResult, message string) TurnResponse {
	symptom := result.Symptom
	if symptom == "" {
		symptom = message
	}
	terms := SymptomSearchTerms(symptom)

	meds, err := e.catalog.SearchByKeywords(ctx, terms, e.opts.MaxAlternatives)
	if err != nil {
		e.logger.Error("recommendation search failed", "symptom", symptom, "error", err)
		return TurnResponse{Type: ResponseError, Message: "something went wrong, please try again"}
	}
	if len(meds) == 0 {
		return TurnResponse{
			Type:    ResponseText,
			Message: "I don't have a product suggestion for that. A pharmacist can advise you better, and for anything serious please see a doctor.",
		}
	}

	recs := make([]Recommendation, 0, len(meds))
	for _, m := range meds {
		recs = append(recs, Recommendation{Name: m.Name, Price: m.Price, Description: m.Description})
	}
	return TurnResponse{
		Type:            ResponseText,
		Message:         fmt.Sprintf("For %s you could try one of these. Tell me which one you'd like to order.", symptom),
		Recommendations: recs,
	}
}

func (e *Engine) checkout(ctx context.Context, patientID string) TurnResponse {
	history, err := e.orders.ListByPatient(ctx, patientID)
	if err != nil {
		e.logger.Error("failed to list orders for checkout", "patient_id", patientID, "error", err)
		return TurnResponse{Type: ResponseError, Message: "something went wrong, please try again"}
	}
	if len(history) == 0 {
		return TurnResponse{
			Type:    ResponseCheckout,
			Message: "You have no orders yet. Tell me what you'd like to buy.",
		}
	}

	var b strings.Builder
	b.WriteString("Your recent orders:")
	total := 0.0
	limit := len(history)
	if limit > 5 {
		limit = 5
	}
	for _, o := range history[:limit] {
		fmt.Fprintf(&b, " %dx %s (%.2f);", o.Quantity, o.ProductName, o.TotalPrice)
		total += o.TotalPrice
	}
	fmt.Fprintf(&b, " total %.2f.", total)

	return TurnResponse{Type: ResponseCheckout, Message: b.String()}
}

func (e *Engine) refillHint(ctx context.Context, patientID, justOrdered string) string {
	if e.refill == nil {
		return ""
	}
	due, err := e.refill.DuePredictions(ctx, patientID)
	if err != nil {
		e.logger.Warn("refill prediction failed", "patient_id", patientID, "error", err)
		return ""
	}
	for _, p := range due {
		if p.Order.ProductName == justOrdered {
			continue
		}
		return fmt.Sprintf("By the way, your %s should run out around %s. Want to reorder it?",
			p.Order.ProductName, p.RunOutDate.Format("Jan 2"))
	}
	return ""
}

func (e *Engine) recordHistory(ctx context.Context, patientID, userMessage, reply string) {
	if e.history == nil {
		return
	}
	err := e.history.Append(ctx, patientID,
		ChatMessage{Role: ChatRoleUser, Content: userMessage},
		ChatMessage{Role: ChatRoleAssistant, Content: reply},
	)
	if err != nil {
		e.logger.Warn("failed to record chat history", "patient_id", patientID, "error", err)
	}
}
