package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"cuenty-subscription-engine/internal/domain"
	"cuenty-subscription-engine/internal/domain/model"
	"cuenty-subscription-engine/internal/usecase"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps domain sentinels onto HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrNoCapacity),
		errors.Is(err, domain.ErrExhausted),
		errors.Is(err, domain.ErrAccountDisabled):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrChargeDeclined):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// ===== auth =====

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if s.cfg.Password == "" ||
		subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.cfg.Password)) != 1 {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	token, err := s.auth.Mint(w)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// ===== read side =====

func (s *Server) handleUrgency(w http.ResponseWriter, r *http.Request) {
	report, err := s.statsUC.UrgencyReport(r.Context(), time.Now())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleStatusCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.statsUC.StatusCounts(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleCapacity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.snapshot != nil {
		var cached []usecase.AccountCapacity
		if ok, err := s.snapshot.Load(ctx, &cached); err == nil && ok {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}
	snap, err := s.poolUC.Snapshot(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	if s.snapshot != nil {
		if err := s.snapshot.Store(ctx, snap); err != nil {
			s.log.Warn().Err(err).Msg("snapshot cache store failed")
		}
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.notifUC.ListAlerts(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

// ===== accounts =====

type accountCreateRequest struct {
	Service  string `json:"service"`
	Label    string `json:"label"`
	Capacity int    `json:"capacity"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleAccountCreate(w http.ResponseWriter, r *http.Request) {
	var req accountCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	account, err := model.NewAccount(uuid.NewString(), req.Service, req.Label, req.Capacity)
	if err != nil {
		writeErr(w, err)
		return
	}
	account.Email = req.Email
	account.Password = req.Password
	if err := s.crypto.SealAccount(account); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.poolUC.CreateAccount(r.Context(), account); err != nil {
		writeErr(w, err)
		return
	}
	// never echo credentials back
	account.Email, account.Password = "", ""
	writeJSON(w, http.StatusCreated, account)
}

func (s *Server) handleAccountDeactivate(w http.ResponseWriter, r *http.Request) {
	if err := s.poolUC.DeactivateAccount(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	if s.snapshot != nil {
		_ = s.snapshot.Invalidate(r.Context())
	}
	w.WriteHeader(http.StatusNoContent)
}

// ===== plans =====

type planCreateRequest struct {
	Service      string `json:"service"`
	Name         string `json:"name"`
	DurationDays int    `json:"duration_days"`
	Price        int64  `json:"price"`
	Cost         int64  `json:"cost"`
}

func (s *Server) handlePlanCreate(w http.ResponseWriter, r *http.Request) {
	var req planCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	plan, err := s.catUC.CreatePlan(r.Context(), req.Service, req.Name, req.DurationDays, req.Price, req.Cost)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

func (s *Server) handlePlanList(w http.ResponseWriter, r *http.Request) {
	plans, err := s.catUC.ListPlans(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

func (s *Server) handlePlanDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.catUC.DeletePlan(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ===== combos =====

type comboCreateRequest struct {
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	AutoCalculate bool              `json:"auto_calculate"`
	PriceTotal    int64             `json:"price_total"`
	CostTotal     int64             `json:"cost_total"`
	Items         []model.ComboItem `json:"items"`
}

func (s *Server) handleComboCreate(w http.ResponseWriter, r *http.Request) {
	var req comboCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	combo, err := s.catUC.CreateCombo(r.Context(), req.Name, req.Description, req.AutoCalculate, req.PriceTotal, req.CostTotal, req.Items)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, combo)
}

func (s *Server) handleComboList(w http.ResponseWriter, r *http.Request) {
	combos, err := s.catUC.ListCombos(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, combos)
}

func (s *Server) handleComboDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.catUC.DeleteCombo(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleComboPricing(w http.ResponseWriter, r *http.Request) {
	pricing, err := s.catUC.ComboPricing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pricing)
}

// ===== customers =====

func (s *Server) handleCustomerCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Handle string `json:"handle"`
		Email  string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	customer, err := s.custUC.Register(r.Context(), req.Name, req.Handle, req.Email)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, customer)
}

func (s *Server) handleCustomerList(w http.ResponseWriter, r *http.Request) {
	customers, err := s.custUC.List(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

func (s *Server) handleCustomerSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.custUC.Subscriptions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// ===== subscriptions =====

func (s *Server) handleSubscriptionCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID string `json:"customer_id"`
		PlanID     string `json:"plan_id"`
		AutoRenew  bool   `json:"auto_renew"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	sub, err := s.subUC.Create(r.Context(), req.CustomerID, req.PlanID, req.AutoRenew)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleSubscriptionGet(w http.ResponseWriter, r *http.Request) {
	sub, err := s.subUC.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleSubscriptionConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PreferredAccountID string `json:"preferred_account_id"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	// with auto assignment off, the operator must pick the account
	if !s.gates.Assignment && req.PreferredAccountID == "" {
		http.Error(w, "auto assignment is disabled: preferred_account_id required", http.StatusConflict)
		return
	}
	sub, err := s.subUC.ConfirmPaid(r.Context(), chi.URLParam(r, "id"), req.PreferredAccountID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if s.snapshot != nil {
		_ = s.snapshot.Invalidate(r.Context())
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleSubscriptionCancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if err := s.subUC.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason); err != nil {
		writeErr(w, err)
		return
	}
	if s.snapshot != nil {
		_ = s.snapshot.Invalidate(r.Context())
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubscriptionPause(w http.ResponseWriter, r *http.Request) {
	if err := s.subUC.Pause(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubscriptionResume(w http.ResponseWriter, r *http.Request) {
	if err := s.subUC.Resume(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAutoRenew(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.subUC.ToggleAutoRenew(r.Context(), chi.URLParam(r, "id"), req.Enabled); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleForceRenew(w http.ResponseWriter, r *http.Request) {
	res, err := s.subUC.ForceRenewNow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeliverCredentials(w http.ResponseWriter, r *http.Request) {
	sub, err := s.subUC.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.notifUC.DeliverCredentials(r.Context(), sub); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ===== jobs =====

func (s *Server) handleRenewalRun(w http.ResponseWriter, r *http.Request) {
	if s.trigger == nil {
		http.Error(w, "scheduler not running", http.StatusServiceUnavailable)
		return
	}
	go s.trigger.RunOnce(context.WithoutCancel(r.Context()), time.Now())
	w.WriteHeader(http.StatusAccepted)
}
