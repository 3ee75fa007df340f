package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pharmaflow/pharmacy-assistant/internal/catalog"
	"github.com/pharmaflow/pharmacy-assistant/internal/orders"
	"github.com/pharmaflow/pharmacy-assistant/internal/pending"
)

type fakeCatalog struct {
	meds map[string]*catalog.Medicine
}

func (f *fakeCatalog) GetByName(_ context.Context, name string) (*catalog.Medicine, error) {
	if m, ok := f.meds[name]; ok {
		copy := *m
		return &copy, nil
	}
	return nil, catalog.ErrNotFound
}

func (f *fakeCatalog) List(_ context.Context) ([]catalog.Medicine, error) {
	var out []catalog.Medicine
	for _, m := range f.meds {
		out = append(out, *m)
	}
	return out, nil
}

func (f *fakeCatalog) ListNames(_ context.Context) ([]string, error) {
	names := make([]string, 0, len(f.meds))
	for name := range f.meds {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeCatalog) SearchByKeywords(_ context.Context, keywords []string, limit int) ([]catalog.Medicine, error) {
	var out []catalog.Medicine
	for _, m := range f.meds {
		for _, kw := range keywords {
			haystack := strings.ToLower(m.Name + " " + m.Description)
			if strings.Contains(haystack, strings.ToLower(kw)) {
				out = append(out, *m)
				break
			}
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeCatalog) DecrementStock(_ context.Context, name string, quantity int) error {
	m, ok := f.meds[name]
	if !ok {
		return catalog.ErrNotFound
	}
	if m.Stock < quantity {
		return catalog.ErrInsufficientStock
	}
	m.Stock -= quantity
	return nil
}

type fakePending struct {
	slots map[string]*pending.Order
}

func (f *fakePending) Set(_ context.Context, patientID, medicineName string, quantity int) error {
	f.slots[patientID] = &pending.Order{
		PatientID:    patientID,
		MedicineName: medicineName,
		Quantity:     quantity,
		CreatedAt:    time.Now(),
	}
	return nil
}

func (f *fakePending) Consume(_ context.Context, patientID string) (*pending.Order, error) {
	o, ok := f.slots[patientID]
	if !ok {
		return nil, nil
	}
	delete(f.slots, patientID)
	return o, nil
}

type fakeOrders struct {
	inserted []orders.Order
	recent   bool
}

func (f *fakeOrders) Insert(_ context.Context, o orders.Order) (orders.Order, error) {
	f.inserted = append(f.inserted, o)
	return o, nil
}

func (f *fakeOrders) HasRecentPurchase(_ context.Context, _, _ string, _ time.Duration) (bool, error) {
	return f.recent, nil
}

func (f *fakeOrders) ListByPatient(_ context.Context, patientID string) ([]orders.Order, error) {
	var out []orders.Order
	for _, o := range f.inserted {
		if o.PatientID == patientID {
			out = append(out, o)
		}
	}
	return out, nil
}

type testMetrics struct {
	turns          int
	oracleFailures int
	committed      int
	stockConflicts int
}

func (m *testMetrics) ObserveTurn(_, _ string)                { m.turns++ }
func (m *testMetrics) ObserveTurnLatency(_ string, _ float64) {}
func (m *testMetrics) ObserveOracleFailure(_ string)          { m.oracleFailures++ }
func (m *testMetrics) ObserveOrderCommitted()                 { m.committed++ }
func (m *testMetrics) ObserveStockConflict()                  { m.stockConflicts++ }

type engineFixture struct {
	engine  *Engine
	catalog *fakeCatalog
	pending *fakePending
	orders  *fakeOrders
	metrics *testMetrics
}

func newEngineFixture(t *testing.T, evalLLM LLMClient) *engineFixture {
	t.Helper()

	cat := &fakeCatalog{meds: map[string]*catalog.Medicine{
		"Paracetamol 500mg Tablets": {
			Name: "Paracetamol 500mg Tablets", Price: 4.99, Stock: 50,
			MaxSafeDosage: 5, Description: "Pain relief",
		},
		"Ibuprofen 400mg": {
			Name: "Ibuprofen 400mg", Price: 6.49, Stock: 30,
			MaxSafeDosage: 4, Description: "Anti-inflammatory pain relief",
		},
		"Oxycodone 10mg": {
			Name: "Oxycodone 10mg", Price: 19.99, Stock: 10,
			MaxSafeDosage: 2, PrescriptionRequired: true, Description: "Opioid analgesic",
		},
		"Cetirizine Allergy Relief": {
			Name: "Cetirizine Allergy Relief", Price: 7.99, Stock: 20,
			MaxSafeDosage: 3, Description: "Antihistamine for allergy symptoms",
		},
	}}
	pend := &fakePending{slots: map[string]*pending.Order{}}
	ord := &fakeOrders{}
	metrics := &testMetrics{}

	engine := NewEngine(
		cat,
		pend,
		ord,
		NewIntentClassifier(nil, "", ClassifierConfig{}),
		NewEvaluator(evalLLM, &stubRx{}, "test-model", nil),
		nil,
		nil,
		metrics,
		nil,
		EngineOptions{},
	)

	return &engineFixture{engine: engine, catalog: cat, pending: pend, orders: ord, metrics: metrics}
}

func (f *engineFixture) turn(t *testing.T, patientID, message string) TurnResponse {
	t.Helper()
	return f.engine.HandleTurn(context.Background(), TurnRequest{PatientID: patientID, Message: message})
}

func TestTurnEmergencyPreemptsEverything(t *testing.T) {
	f := newEngineFixture(t, nil)

	// A pending order must survive an emergency untouched.
	f.pending.slots["p1"] = &pending.Order{PatientID: "p1", MedicineName: "Ibuprofen 400mg"}

	resp := f.turn(t, "p1", "I want to order paracetamol but I have chest pain")
	if resp.Type != ResponseEmergency {
		t.Fatalf("Type = %q, want emergency", resp.Type)
	}
	if f.pending.slots["p1"] == nil {
		t.Error("pending order was consumed during an emergency turn")
	}
	if len(f.orders.inserted) != 0 {
		t.Error("an order was placed during an emergency turn")
	}
}

func TestTurnOrderWithoutQuantityAsks(t *testing.T) {
	f := newEngineFixture(t, nil)

	resp := f.turn(t, "p1", "I want to buy paracetamol")
	if resp.Type != ResponseAskQuantity {
		t.Fatalf("Type = %q, want ask_quantity (message: %s)", resp.Type, resp.Message)
	}
	slot := f.pending.slots["p1"]
	if slot == nil || slot.MedicineName != "Paracetamol 500mg Tablets" {
		t.Fatalf("pending slot = %+v, want Paracetamol 500mg Tablets", slot)
	}
	if len(f.orders.inserted) != 0 {
		t.Error("order inserted before a quantity was supplied")
	}
}

func TestTurnDigitResumeCompletesOrder(t *testing.T) {
	f := newEngineFixture(t, nil)

	f.turn(t, "p1", "I want to buy paracetamol")
	resp := f.turn(t, "p1", "2")

	if resp.Type != ResponseOrderSuccess {
		t.Fatalf("Type = %q, want order_success (message: %s)", resp.Type, resp.Message)
	}
	if resp.Order == nil {
		t.Fatal("Order data missing on success")
	}
	if resp.Order.Quantity != 2 || resp.Order.TotalPrice != 9.98 {
		t.Errorf("Order = %+v, want 2 packs at 9.98", resp.Order)
	}
	if got := f.catalog.meds["Paracetamol 500mg Tablets"].Stock; got != 48 {
		t.Errorf("stock = %d, want 48", got)
	}
	if len(f.orders.inserted) != 1 {
		t.Fatalf("inserted %d orders, want 1", len(f.orders.inserted))
	}
	if f.metrics.committed != 1 {
		t.Errorf("committed metric = %d, want 1", f.metrics.committed)
	}
}

// A replayed quantity reply finds the slot already consumed, so it cannot
// place a second order.
func TestTurnConsumedSlotIsNotReplayable(t *testing.T) {
	f := newEngineFixture(t, nil)

	f.turn(t, "p1", "I want to buy paracetamol")
	f.turn(t, "p1", "2")
	resp := f.turn(t, "p1", "2")

	if resp.Type == ResponseOrderSuccess {
		t.Fatal("replayed quantity reply produced a second order")
	}
	if len(f.orders.inserted) != 1 {
		t.Errorf("inserted %d orders, want 1", len(f.orders.inserted))
	}
}

func TestTurnNewOrderReplacesPendingSlot(t *testing.T) {
	f := newEngineFixture(t, nil)

	f.turn(t, "p1", "I want to buy paracetamol")
	f.turn(t, "p1", "I want to buy ibuprofen")

	slot := f.pending.slots["p1"]
	if slot == nil || slot.MedicineName != "Ibuprofen 400mg" {
		t.Fatalf("pending slot = %+v, want the newer Ibuprofen 400mg", slot)
	}
	if len(f.pending.slots) != 1 {
		t.Errorf("patient holds %d pending slots, want 1", len(f.pending.slots))
	}
}

func TestTurnUnsafeQuantityNeedsConfirmation(t *testing.T) {
	f := newEngineFixture(t, nil)

	resp := f.turn(t, "p1", "order 10 ibuprofen")
	if resp.Type != ResponseText || !strings.Contains(resp.Message, "Option A") {
		t.Fatalf("got %q %q, want an Option A/B/C prompt", resp.Type, resp.Message)
	}
	slot := f.pending.slots["p1"]
	if slot == nil || slot.Quantity != 4 {
		t.Fatalf("pending slot = %+v, want reduced quantity 4", slot)
	}
	if len(f.orders.inserted) != 0 {
		t.Error("order inserted without confirmation")
	}

	confirm := f.turn(t, "p1", "a")
	if confirm.Type != ResponseOrderSuccess {
		t.Fatalf("confirmation Type = %q, want order_success (message: %s)", confirm.Type, confirm.Message)
	}
	if confirm.Order.Quantity != 4 {
		t.Errorf("confirmed quantity = %d, want the reduced 4", confirm.Order.Quantity)
	}
}

func TestTurnModifyClearsSlotAndPromptsAgain(t *testing.T) {
	f := newEngineFixture(t, nil)

	f.turn(t, "p1", "order 10 ibuprofen")
	resp := f.turn(t, "p1", "option b")

	if resp.Type != ResponseText || !strings.Contains(resp.Message, "instead") {
		t.Fatalf("got %q %q, want a start-over prompt", resp.Type, resp.Message)
	}
	if len(f.pending.slots) != 0 {
		t.Fatal("pending slot survived a modify reply")
	}

	// A bare number is no longer a continuation of the old order.
	if next := f.turn(t, "p1", "3"); next.Type == ResponseOrderSuccess {
		t.Fatal("bare digit after modify completed the abandoned order")
	}

	// The patient starts over with whatever they actually want.
	done := f.turn(t, "p1", "order 2 paracetamol")
	if done.Type != ResponseOrderSuccess || done.Order.Quantity != 2 {
		t.Errorf("got %q order=%v, want order_success qty=2", done.Type, done.Order)
	}
}

func TestTurnOutOfStockOffersAlternatives(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.catalog.meds["Paracetamol 500mg Tablets"].Stock = 0

	resp := f.turn(t, "p1", "order 2 paracetamol")
	if resp.Type != ResponseText || !strings.Contains(resp.Message, "Option A") {
		t.Fatalf("got %q %q, want an Option A/B/C prompt", resp.Type, resp.Message)
	}
	if len(resp.Recommendations) == 0 {
		t.Fatal("no alternatives surfaced for an out-of-stock product")
	}
	for _, r := range resp.Recommendations {
		if r.Name == "Paracetamol 500mg Tablets" {
			t.Error("the out-of-stock product suggested as its own alternative")
		}
	}
	if len(f.orders.inserted) != 0 {
		t.Error("order inserted for an out-of-stock product")
	}

	// Proceeding anyway runs into the conditional decrement.
	confirm := f.turn(t, "p1", "a")
	if confirm.Type != ResponseSafetyBlock {
		t.Fatalf("confirmation Type = %q, want safety_block (message: %s)", confirm.Type, confirm.Message)
	}

	// Ordering the suggested substitute works normally.
	done := f.turn(t, "p1", "order 2 ibuprofen")
	if done.Type != ResponseOrderSuccess {
		t.Errorf("Type = %q, want order_success (message: %s)", done.Type, done.Message)
	}
}

func TestTurnShortStockOffersReducedQuantity(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.catalog.meds["Ibuprofen 400mg"].Stock = 3

	resp := f.turn(t, "p1", "order 4 ibuprofen")
	if resp.Type != ResponseText || !strings.Contains(resp.Message, "Option A") {
		t.Fatalf("got %q %q, want an Option A/B/C prompt", resp.Type, resp.Message)
	}
	slot := f.pending.slots["p1"]
	if slot == nil || slot.Quantity != 3 {
		t.Fatalf("pending slot = %+v, want reduced quantity 3", slot)
	}

	confirm := f.turn(t, "p1", "a")
	if confirm.Type != ResponseOrderSuccess || confirm.Order.Quantity != 3 {
		t.Errorf("got %q order=%v, want order_success qty=3", confirm.Type, confirm.Order)
	}
}

func TestTurnCancelClearsSlot(t *testing.T) {
	f := newEngineFixture(t, nil)

	f.turn(t, "p1", "order 10 ibuprofen")
	resp := f.turn(t, "p1", "option c")

	if resp.Type != ResponseText || !strings.Contains(resp.Message, "cancelled") {
		t.Fatalf("got %q %q, want a cancellation message", resp.Type, resp.Message)
	}
	if len(f.pending.slots) != 0 {
		t.Error("pending slot survived cancellation")
	}
	if len(f.orders.inserted) != 0 {
		t.Error("order inserted despite cancellation")
	}
}

func TestTurnPrescriptionRequired(t *testing.T) {
	f := newEngineFixture(t, nil)

	resp := f.turn(t, "p1", "order 1 oxycodone")
	if resp.Type != ResponsePrescriptionRequired {
		t.Fatalf("Type = %q, want prescription_required (message: %s)", resp.Type, resp.Message)
	}
	if len(f.orders.inserted) != 0 {
		t.Error("prescription medicine sold without a prescription")
	}
	if got := f.catalog.meds["Oxycodone 10mg"].Stock; got != 10 {
		t.Errorf("stock = %d, want untouched 10", got)
	}
}

func TestTurnStockConflictAtCommit(t *testing.T) {
	f := newEngineFixture(t, nil)

	// The patient already confirmed, so the evaluator is bypassed and the
	// conditional decrement is the last line of defense against overselling.
	f.pending.slots["p1"] = &pending.Order{
		PatientID: "p1", MedicineName: "Paracetamol 500mg Tablets", Quantity: 2,
	}
	f.catalog.meds["Paracetamol 500mg Tablets"].Stock = 1

	resp := f.turn(t, "p1", "a")
	if resp.Type != ResponseSafetyBlock {
		t.Fatalf("Type = %q, want safety_block (message: %s)", resp.Type, resp.Message)
	}
	if len(f.orders.inserted) != 0 {
		t.Error("oversold order was recorded")
	}
	if got := f.catalog.meds["Paracetamol 500mg Tablets"].Stock; got != 1 {
		t.Errorf("stock = %d, want unchanged 1", got)
	}
	if f.metrics.stockConflicts != 1 {
		t.Errorf("stock conflict metric = %d, want 1", f.metrics.stockConflicts)
	}
}

func TestTurnRecentPurchaseNeedsConfirmation(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.orders.recent = true

	resp := f.turn(t, "p1", "order 2 paracetamol")
	if resp.Type != ResponseText || !strings.Contains(resp.Message, "Option A") {
		t.Fatalf("got %q %q, want an Option A/B/C prompt", resp.Type, resp.Message)
	}
	if len(f.orders.inserted) != 0 {
		t.Error("order inserted despite the recent purchase hold")
	}

	confirm := f.turn(t, "p1", "yes")
	if confirm.Type != ResponseOrderSuccess || confirm.Order.Quantity != 2 {
		t.Errorf("got %q order=%v, want order_success qty=2", confirm.Type, confirm.Order)
	}
}

func TestTurnOracleFailureBlocksOrder(t *testing.T) {
	f := newEngineFixture(t, &stubLLM{text: "sorry, I cannot answer in JSON today"})

	resp := f.turn(t, "p1", "order 2 paracetamol")
	if resp.Type != ResponseSafetyBlock {
		t.Fatalf("Type = %q, want safety_block (message: %s)", resp.Type, resp.Message)
	}
	if !strings.Contains(resp.Message, failClosedReason) {
		t.Errorf("Message = %q, want the fail-closed reason", resp.Message)
	}
	if len(f.orders.inserted) != 0 {
		t.Error("order placed on an unreadable oracle verdict")
	}
	if f.metrics.oracleFailures != 1 {
		t.Errorf("oracle failure metric = %d, want 1", f.metrics.oracleFailures)
	}
}

func TestTurnUnmatchedMedicine(t *testing.T) {
	f := newEngineFixture(t, nil)

	resp := f.turn(t, "p1", "order unicorn dust")
	if resp.Type != ResponseError {
		t.Fatalf("Type = %q, want error", resp.Type)
	}
	if len(f.pending.slots) != 0 {
		t.Error("pending slot created for an unmatched medicine")
	}
}

func TestTurnFuzzyMatchAbsorbsTypo(t *testing.T) {
	f := newEngineFixture(t, nil)

	resp := f.turn(t, "p1", "order 2 paracetmol")
	if resp.Type != ResponseOrderSuccess {
		t.Fatalf("Type = %q, want order_success (message: %s)", resp.Type, resp.Message)
	}
	if resp.Order.Product != "Paracetamol 500mg Tablets" {
		t.Errorf("Product = %q, want the canonical name", resp.Order.Product)
	}
}

func TestTurnRecommendForSymptom(t *testing.T) {
	f := newEngineFixture(t, nil)

	resp := f.turn(t, "p1", "I have an allergy, what should I take?")
	if resp.Type != ResponseText {
		t.Fatalf("Type = %q, want text", resp.Type)
	}
	if len(resp.Recommendations) == 0 {
		t.Fatal("no recommendations returned for a curated symptom")
	}
	found := false
	for _, r := range resp.Recommendations {
		if r.Name == "Cetirizine Allergy Relief" {
			found = true
		}
	}
	if !found {
		t.Errorf("recommendations %v missing the allergy product", resp.Recommendations)
	}
}

func TestTurnCheckoutSummarizesOrders(t *testing.T) {
	f := newEngineFixture(t, nil)

	f.turn(t, "p1", "order 2 paracetamol")
	resp := f.turn(t, "p1", "checkout please")

	if resp.Type != ResponseCheckout {
		t.Fatalf("Type = %q, want checkout_prompt", resp.Type)
	}
	if !strings.Contains(resp.Message, "Paracetamol 500mg Tablets") {
		t.Errorf("Message = %q, want the purchased product named", resp.Message)
	}
}

func TestTurnUnknownFallback(t *testing.T) {
	f := newEngineFixture(t, nil)

	resp := f.turn(t, "p1", "hello there")
	if resp.Type != ResponseText {
		t.Fatalf("Type = %q, want text", resp.Type)
	}
}

func TestTurnRejectsEmptyInput(t *testing.T) {
	f := newEngineFixture(t, nil)

	if resp := f.turn(t, "", "hi"); resp.Type != ResponseError {
		t.Errorf("missing patient id: Type = %q, want error", resp.Type)
	}
	if resp := f.turn(t, "p1", "   "); resp.Type != ResponseError {
		t.Errorf("blank message: Type = %q, want error", resp.Type)
	}
}
