package http

import (
	"errors"
	"fmt"
	"net/http"

	"mcdry/internal/services"
)

// handleDeleteTransaction reverses a transaction and returns to its member.
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := ParseIDParam(r, "id")
	if err != nil {
		Redirect(backTo(r)).Error("Transaction not found.").Write(w, r, s.sessions)
		return
	}
	tx, err := s.ledger.DeleteTransaction(r.Context(), id)
	switch {
	case errors.Is(err, services.ErrTransactionNotFound):
		Redirect(backTo(r)).Error("Transaction not found.").Write(w, r, s.sessions)
		return
	case err != nil:
		s.serverError(w, r, "Delete transaction failed", err)
		return
	}
	Redirect(memberPath(tx.MemberID)).
		Success(fmt.Sprintf("Transaction %q of %s deleted; balance adjusted by %s.",
			tx.Description, tx.Amount, tx.Amount.Neg())).
		Write(w, r, s.sessions)
}

func (s *Server) handleDeleteLeave(w http.ResponseWriter, r *http.Request) {
	id, err := ParseIDParam(r, "id")
	if err != nil {
		Redirect(backTo(r)).Error("Leave not found.").Write(w, r, s.sessions)
		return
	}
	l, err := s.leaves.DeleteLeave(r.Context(), id)
	switch {
	case errors.Is(err, services.ErrLeaveNotFound):
		Redirect(backTo(r)).Error("Leave not found.").Write(w, r, s.sessions)
		return
	case err != nil:
		s.serverError(w, r, "Delete leave failed", err)
		return
	}
	Redirect(memberPath(l.MemberID)).
		Success(fmt.Sprintf("Leave on %s deleted.", l.Date)).
		Write(w, r, s.sessions)
}
