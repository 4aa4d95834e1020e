package matching

import "encoding/json"

// RequestEnvelope is the wire shape carried on the request bus
// (infra/bus/request): one JSON frame per submitted request, tagged by
// kind so the shard's dispatch loop knows which concrete request type
// to decode the payload into. Mirrors event.Envelope's framing on the
// matching engine's output side.
type RequestEnvelope struct {
	Kind     RequestKind     `json:"kind"`
	MarketID string          `json:"market_id"`
	Payload  json.RawMessage `json:"payload"`
}

func EncodeRequest(kind RequestKind, marketID string, payload any) (RequestEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return RequestEnvelope{}, err
	}
	return RequestEnvelope{Kind: kind, MarketID: marketID, Payload: raw}, nil
}

// Dispatch decodes and executes a RequestEnvelope against the engine,
// routing to the matching request handler for its Kind. Used by the
// shard's bus-drain loop so it doesn't need a type switch of its own.
func (e *Engine) Dispatch(env RequestEnvelope) (Response, error) {
	switch env.Kind {
	case KindPlaceOrder:
		var req PlaceOrderRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return Response{}, err
		}
		return e.PlaceOrder(req), nil
	case KindCancelOrder:
		var req CancelOrderRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return Response{}, err
		}
		return e.CancelOrder(req), nil
	case KindDeposit:
		var req DepositRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return Response{}, err
		}
		return e.Deposit(req), nil
	case KindWithdraw:
		var req WithdrawRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return Response{}, err
		}
		return e.Withdraw(req), nil
	case KindLookup:
		var req LookupRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return Response{}, err
		}
		return e.Lookup(req)
	default:
		return rejected("", "InvalidRequest", "unknown request kind: "+string(env.Kind)), nil
	}
}
