// Package chat implements the conversational ordering flow: intent
// classification, compliance evaluation, and the turn engine that ties them
// to the catalog, order, and pending stores.
package chat

// ResponseType tags every turn response so channel adapters can render it
// without parsing the message text.
type ResponseType string

const (
	ResponseText                 ResponseType = "text"
	ResponseAskQuantity          ResponseType = "ask_quantity"
	ResponsePrescriptionRequired ResponseType = "prescription_required"
	ResponseSafetyBlock          ResponseType = "safety_block"
	ResponseOrderSuccess         ResponseType = "order_success"
	ResponseCheckout             ResponseType = "checkout_prompt"
	// ResponseEmergency is its own type rather than plain text: voice and
	// web adapters render emergency replies with distinct urgency.
	ResponseEmergency ResponseType = "emergency"
	ResponseError                ResponseType = "error"
)

// TurnRequest is one inbound patient message.
type TurnRequest struct {
	PatientID string `json:"patient_id"`
	Message   string `json:"message"`
}

// OrderData carries the committed order details on a successful turn.
type OrderData struct {
	Product    string  `json:"product"`
	Quantity   int     `json:"quantity"`
	TotalPrice float64 `json:"total_price"`
}

// Recommendation is one suggested product in a symptom or alternative reply.
type Recommendation struct {
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description,omitempty"`
}

// TurnResponse is the engine's reply for one message.
type TurnResponse struct {
	Type            ResponseType     `json:"type"`
	Message         string           `json:"message"`
	Order           *OrderData       `json:"order,omitempty"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	Trace           []string         `json:"trace,omitempty"`
}
