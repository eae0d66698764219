package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"mcdry/internal/auth"
	"mcdry/internal/core"
	"mcdry/internal/log"
	"mcdry/internal/services"
	"mcdry/internal/storage"

	"golang.org/x/sync/errgroup"
)

type indexData struct {
	Members []core.Member
	Summary core.LedgerSummary
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var data indexData
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		data.Members, err = s.repo.ListMembers(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		data.Summary, err = s.repo.Summary(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.serverError(w, r, "Load members failed", err)
		return
	}
	s.render(w, r, http.StatusOK, "index.html", "Members", data)
}

func (s *Server) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		Redirect("/").Error("Invalid form submission.").Write(w, r, s.sessions)
		return
	}
	form, err := ParseMemberForm(r.PostForm)
	if err != nil {
		Redirect("/").Error(inputErrorMessage(err)).Write(w, r, s.sessions)
		return
	}

	m, err := s.ledger.CreateMember(r.Context(), form.Number, form.Name, form.InitialBalance)
	switch {
	case errors.Is(err, storage.ErrDuplicateMemberNumber):
		Redirect("/").
			Warning(fmt.Sprintf("Member number %s is already in use.", form.Number)).
			Write(w, r, s.sessions)
		return
	case err != nil:
		s.serverError(w, r, "Create member failed", err)
		return
	}
	Redirect("/").
		Success(fmt.Sprintf("Member %s (%s) added.", m.Name, m.Number)).
		Write(w, r, s.sessions)
}

type memberData struct {
	Member       core.Member
	Transactions []core.Transaction
	Leaves       []core.Leave
	Today        string
}

func (s *Server) handleMember(w http.ResponseWriter, r *http.Request) {
	id, err := ParseIDParam(r, "id")
	if err != nil {
		s.handleNotFound(w, r)
		return
	}

	data := memberData{Today: time.Now().Format(core.DateLayout)}
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		data.Member, err = s.repo.GetMember(ctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		data.Transactions, err = s.repo.ListTransactions(ctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		data.Leaves, err = s.repo.ListLeaves(ctx, id)
		return err
	})
	err = g.Wait()
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.handleNotFound(w, r)
		return
	case err != nil:
		s.serverError(w, r, "Load member failed", err)
		return
	}
	s.render(w, r, http.StatusOK, "member.html", data.Member.Name, data)
}

// handleMemberPost records a transaction, a leave range, or both from one
// form. Both parts are authorized and validated before anything is written
// and commit together.
func (s *Server) handleMemberPost(w http.ResponseWriter, r *http.Request) {
	id, err := ParseIDParam(r, "id")
	if err != nil {
		s.handleNotFound(w, r)
		return
	}
	target := memberPath(id)
	if err := r.ParseForm(); err != nil {
		Redirect(target).Error("Invalid form submission.").Write(w, r, s.sessions)
		return
	}

	wantTx, wantLeave := HasTransaction(r.PostForm), HasLeave(r.PostForm)
	if wantTx && !s.authorize(w, r, auth.ActionRecordTransaction) {
		return
	}
	if wantLeave && !s.authorize(w, r, auth.ActionRecordLeave) {
		return
	}
	if !wantTx && !wantLeave {
		Redirect(target).Warning("Nothing to record.").Write(w, r, s.sessions)
		return
	}

	var txEntry *services.TransactionEntry
	var leaveEntry *services.LeaveEntry
	if wantTx {
		f, err := ParseTransactionForm(r.PostForm)
		if err != nil {
			Redirect(target).Error(inputErrorMessage(err)).Write(w, r, s.sessions)
			return
		}
		txEntry = &services.TransactionEntry{Amount: f.Amount, Description: f.Description, Direction: f.Direction}
	}
	if wantLeave {
		f, err := ParseLeaveForm(r.PostForm)
		if err != nil {
			Redirect(target).Error(inputErrorMessage(err)).Write(w, r, s.sessions)
			return
		}
		leaveEntry = &services.LeaveEntry{Range: f.Range, Reason: f.Reason}
	}

	res, err := s.ledger.RecordEntries(r.Context(), id, txEntry, leaveEntry)
	switch {
	case errors.Is(err, services.ErrMemberNotFound):
		s.handleNotFound(w, r)
		return
	case err != nil:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Record member entries failed",
			log.FieldMemberID, id,
			log.FieldError, err.Error())
		Redirect(target).Error("Could not save the entry. Nothing was recorded.").Write(w, r, s.sessions)
		return
	}

	resp := Redirect(target)
	if res.Transaction != nil {
		resp.Success(fmt.Sprintf("Recorded %s of %s.", txEntry.Direction, res.Transaction.Amount.Abs()))
	}
	if res.Leave != nil {
		resp.Flash(leaveFlash(*res.Leave))
	}
	resp.Write(w, r, s.sessions)
}

// leaveFlash reports the requested span and what was actually inserted.
func leaveFlash(res services.LeaveRangeResult) (auth.FlashLevel, string) {
	days := func(n int) string {
		if n == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", n)
	}
	switch {
	case res.Inserted == 0:
		return auth.FlashWarning, fmt.Sprintf("Leave for %s was already on record. Nothing added.", days(res.Requested))
	case res.Skipped > 0:
		return auth.FlashSuccess, fmt.Sprintf("Leave requested for %s: %s added, %s already on record.",
			days(res.Requested), days(res.Inserted), days(res.Skipped))
	default:
		return auth.FlashSuccess, fmt.Sprintf("Leave recorded for %s.", days(res.Inserted))
	}
}

func (s *Server) handleDeleteMember(w http.ResponseWriter, r *http.Request) {
	id, err := ParseIDParam(r, "id")
	if err != nil {
		Redirect("/").Error("Member not found.").Write(w, r, s.sessions)
		return
	}
	m, err := s.ledger.DeleteMember(r.Context(), id)
	switch {
	case errors.Is(err, services.ErrMemberNotFound):
		Redirect("/").Error("Member not found.").Write(w, r, s.sessions)
		return
	case err != nil:
		s.serverError(w, r, "Delete member failed", err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Member deleted via web",
		log.FieldMemberID, m.ID,
		log.FieldMemberNumber, m.Number)
	Redirect("/").
		Success(fmt.Sprintf("Member %s (%s) deleted with all transactions and leaves.", m.Name, m.Number)).
		Write(w, r, s.sessions)
}
