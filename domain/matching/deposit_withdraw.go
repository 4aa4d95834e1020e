package matching

import (
	"github.com/thecurioussailor/exchangecore/domain/errkind"
	"github.com/thecurioussailor/exchangecore/domain/ledger"
)

// Deposit credits a user's available balance for a token. Deposits are
// not market-scoped and are never subject to a market halt (spec
// SUPPLEMENT: funding is an account-level operation).
func (e *Engine) Deposit(req DepositRequest) Response {
	if resp, ok := e.cacheOrReplay(req.UserID, req.RequestID); ok {
		return resp
	}
	resp := e.deposit(req)
	e.storeResponse(req.UserID, req.RequestID, resp)
	return resp
}

func (e *Engine) deposit(req DepositRequest) Response {
	if req.Amount <= 0 {
		return rejected(req.RequestID, string(errkind.InvalidRequest), "deposit amount must be > 0")
	}
	userID := ledger.UserID(req.UserID)
	token := ledger.TokenID(req.TokenID)
	if err := e.ledger.Credit(userID, token, req.Amount, "deposit:"+req.RequestID); err != nil {
		kind, msg := kindMessage(err)
		return rejected(req.RequestID, kind, msg)
	}
	return Response{RequestID: req.RequestID, Accepted: true}
}

// Withdraw debits a user's available balance, failing with
// InsufficientAvailable if the funds aren't free.
func (e *Engine) Withdraw(req WithdrawRequest) Response {
	if resp, ok := e.cacheOrReplay(req.UserID, req.RequestID); ok {
		return resp
	}
	resp := e.withdraw(req)
	e.storeResponse(req.UserID, req.RequestID, resp)
	return resp
}

func (e *Engine) withdraw(req WithdrawRequest) Response {
	if req.Amount <= 0 {
		return rejected(req.RequestID, string(errkind.InvalidRequest), "withdraw amount must be > 0")
	}
	userID := ledger.UserID(req.UserID)
	token := ledger.TokenID(req.TokenID)
	if err := e.ledger.Debit(userID, token, req.Amount, "withdraw:"+req.RequestID); err != nil {
		kind, msg := kindMessage(err)
		return rejected(req.RequestID, kind, msg)
	}
	return Response{RequestID: req.RequestID, Accepted: true}
}
