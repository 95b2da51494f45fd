package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rimborsi/internal/core"
	applog "rimborsi/internal/log"
	"rimborsi/internal/workflow"
)

// HeaderUserID names the acting user. There is no authentication in front of it.
const HeaderUserID = "X-User-ID"

type actorHandler func(w http.ResponseWriter, r *http.Request, actor core.User)

type expenseResponse struct {
	ID          int64              `json:"id"`
	Amount      string             `json:"amount"`
	Currency    string             `json:"currency"`
	Description string             `json:"description"`
	Date        string             `json:"date"`
	OwnerID     int64              `json:"owner_id"`
	CategoryID  int64              `json:"category_id"`
	Status      core.ExpenseStatus `json:"status"`
	ReceiptRef  string             `json:"receipt_ref,omitempty"`
	Version     int64              `json:"version"`
	CreatedAt   *time.Time         `json:"created_at,omitempty"`
	UpdatedAt   *time.Time         `json:"updated_at,omitempty"`
}

type actionsResponse struct {
	ExpenseID int64             `json:"expense_id"`
	Actions   []workflow.Action `json:"actions"`
}

func toExpenseResponse(e core.Expense) expenseResponse {
	out := expenseResponse{
		ID:          e.ID,
		Amount:      e.Amount.StringFixed(2),
		Currency:    e.Currency,
		Description: e.Description,
		Date:        e.Date.String(),
		OwnerID:     e.OwnerID,
		CategoryID:  e.CategoryID,
		Status:      e.Status,
		ReceiptRef:  e.ReceiptRef,
		Version:     e.Version,
	}
	if !e.CreatedAt.IsZero() {
		t := e.CreatedAt.UTC()
		out.CreatedAt = &t
	}
	if !e.UpdatedAt.IsZero() {
		t := e.UpdatedAt.UTC()
		out.UpdatedAt = &t
	}
	return out
}

// withActor resolves X-User-ID to a known user before calling h. The cached
// copy only establishes identity; the service re-reads the user before every
// authorization decision.
func (s *Server) withActor(h actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if raw == "" {
			writeUnauthenticated(w, "missing "+HeaderUserID+" header")
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeUnauthenticated(w, "invalid "+HeaderUserID+" header")
			return
		}

		actor, err := s.actors.GetOrLoad(id, func() (core.User, error) {
			return s.users.FindUser(r.Context(), id)
		})
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				writeUnauthenticated(w, "unknown user")
				return
			}
			writeError(w, r, applog.OpRead, err)
			return
		}

		logger := applog.FromContext(r.Context()).With(
			applog.FieldActorID, actor.ID,
			applog.FieldActorRole, string(actor.Role))
		h(w, r.WithContext(applog.WithLogger(r.Context(), logger)), actor)
	}
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request, actor core.User) {
	const op = applog.OpCreate
	req, err := parseCreateRequest(w, r, op, time.Now())
	if err != nil {
		writeError(w, r, op, err)
		return
	}

	e, err := s.service.CreateExpense(r.Context(), actor, req)
	if err != nil {
		writeError(w, r, op, err)
		return
	}

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/expenses/"+strconv.FormatInt(e.ID, 10)).
		Data(toExpenseResponse(e)).
		Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request, actor core.User) {
	const op = applog.OpRead
	id, err := pathID(r, op)
	if err != nil {
		writeError(w, r, op, err)
		return
	}

	e, err := s.service.GetExpense(r.Context(), id, actor)
	if err != nil {
		writeError(w, r, op, err)
		return
	}
	NewJSONResponse().Data(toExpenseResponse(e)).Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request, actor core.User) {
	const op = applog.OpUpdate
	id, err := pathID(r, op)
	if err != nil {
		writeError(w, r, op, err)
		return
	}
	req, err := parseUpdateRequest(w, r, op)
	if err != nil {
		writeError(w, r, op, err)
		return
	}

	e, err := s.service.UpdateExpense(r.Context(), id, actor, req)
	if err != nil {
		writeError(w, r, op, err)
		return
	}
	NewJSONResponse().Data(toExpenseResponse(e)).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request, actor core.User) {
	const op = applog.OpDelete
	id, err := pathID(r, op)
	if err != nil {
		writeError(w, r, op, err)
		return
	}

	if err := s.service.DeleteExpense(r.Context(), id, actor); err != nil {
		writeError(w, r, op, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request, actor core.User) {
	s.handleTransition(w, r, actor, workflow.ActionApprove)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request, actor core.User) {
	s.handleTransition(w, r, actor, workflow.ActionReject)
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request, actor core.User, action workflow.Action) {
	op := string(action)
	id, err := pathID(r, op)
	if err != nil {
		writeError(w, r, op, err)
		return
	}

	var e core.Expense
	if action == workflow.ActionApprove {
		e, err = s.service.Approve(r.Context(), id, actor)
	} else {
		e, err = s.service.Reject(r.Context(), id, actor)
	}
	if err != nil {
		writeError(w, r, op, err)
		return
	}
	NewJSONResponse().Data(toExpenseResponse(e)).Write(w)
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request, actor core.User) {
	const op = applog.OpRead
	id, err := pathID(r, op)
	if err != nil {
		writeError(w, r, op, err)
		return
	}

	actions, err := s.service.AvailableActions(r.Context(), id, actor)
	if err != nil {
		writeError(w, r, op, err)
		return
	}
	if actions == nil {
		actions = []workflow.Action{}
	}
	NewJSONResponse().Data(actionsResponse{ExpenseID: id, Actions: actions}).Write(w)
}
