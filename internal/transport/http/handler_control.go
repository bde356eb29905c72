package httptransport

import (
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"ore-autominer/internal/app/control"
)

type ControlHandlers struct {
	svc      *control.Service
	adminKey string
}

func NewControlHandlers(svc *control.Service, adminKey string) *ControlHandlers {
	return &ControlHandlers{svc: svc, adminKey: adminKey}
}

func (h *ControlHandlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := h.svc.Health(r.Context())
		status := http.StatusOK
		if !resp.OK {
			status = http.StatusServiceUnavailable
		}
		WriteJSON(w, status, resp)
	}
}

func (h *ControlHandlers) StartSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req control.StartSessionRequest
		if err := decodeJSON(r, &req); err != nil {
			WriteServiceError(w, r, err)
			return
		}
		resp, err := h.svc.StartSession(r.Context(), req)
		if err != nil {
			WriteServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func (h *ControlHandlers) StopSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req control.WalletRequest
		if err := decodeJSON(r, &req); err != nil {
			WriteServiceError(w, r, err)
			return
		}
		resp, err := h.svc.StopSession(r.Context(), req)
		if err != nil {
			WriteServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func (h *ControlHandlers) SessionStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := h.svc.SessionStatus(r.Context(), r.URL.Query().Get("wallet"))
		if err != nil {
			WriteServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func (h *ControlHandlers) Stats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := h.svc.Stats(r.Context(), r.URL.Query().Get("wallet"))
		if err != nil {
			WriteServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func (h *ControlHandlers) Transactions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := ParsePagination(r)
		resp, err := h.svc.Transactions(r.Context(), r.URL.Query().Get("wallet"), limit, offset)
		if err != nil {
			WriteServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func (h *ControlHandlers) Round() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deploy, err := optionalDecimal(r, "deploy")
		if err != nil {
			WriteServiceError(w, r, err)
			return
		}
		tip, err := optionalDecimal(r, "tip")
		if err != nil {
			WriteServiceError(w, r, err)
			return
		}
		if deploy == nil {
			d := control.DefaultRoundDeploy
			deploy = &d
		}
		resp, err := h.svc.Round(r.Context(), deploy, tip)
		if err != nil {
			WriteServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func (h *ControlHandlers) Grid() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := h.svc.Round(r.Context(), nil, nil)
		if err != nil {
			WriteServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func (h *ControlHandlers) Balances() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := h.svc.Balances(r.Context(), r.URL.Query().Get("wallet"))
		if err != nil {
			WriteServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func (h *ControlHandlers) SyncBalances() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req control.WalletRequest
		if err := decodeJSON(r, &req); err != nil {
			WriteServiceError(w, r, err)
			return
		}
		resp, err := h.svc.SyncBalances(r.Context(), req)
		if err != nil {
			WriteServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func (h *ControlHandlers) BalanceHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := ParsePagination(r)
		resp, err := h.svc.BalanceHistory(r.Context(), r.URL.Query().Get("wallet"), limit)
		if err != nil {
			WriteServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func (h *ControlHandlers) Claim(claimType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req control.ClaimRequest
		if err := decodeJSON(r, &req); err != nil {
			WriteServiceError(w, r, err)
			return
		}
		resp, err := h.svc.Claim(r.Context(), claimType, req)
		if err != nil {
			WriteServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, resp)
	}
}

func (h *ControlHandlers) ClaimsHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := ParsePagination(r)
		resp, err := h.svc.ClaimsHistory(r.Context(), r.URL.Query().Get("wallet"), limit, offset)
		if err != nil {
			WriteServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func (h *ControlHandlers) GenerateWallet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req control.GenerateWalletRequest
		if err := decodeJSON(r, &req); err != nil {
			WriteServiceError(w, r, err)
			return
		}
		resp, err := h.svc.GenerateWallet(r.Context(), req)
		if err != nil {
			WriteServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusCreated, resp)
	}
}

func (h *ControlHandlers) ImportWallet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req control.ImportWalletRequest
		if err := decodeJSON(r, &req); err != nil {
			WriteServiceError(w, r, err)
			return
		}
		resp, err := h.svc.ImportWallet(r.Context(), req)
		if err != nil {
			WriteServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusCreated, resp)
	}
}

func (h *ControlHandlers) ListWallets() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := h.svc.ListWallets(r.Context())
		if err != nil {
			WriteServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// ExportWallet refuses to run without a configured admin key.
func (h *ControlHandlers) ExportWallet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.adminKey == "" {
			WriteHTTPError(w, http.StatusForbidden, "admin_key_not_configured")
			return
		}
		var req control.ExportWalletRequest
		if err := decodeJSON(r, &req); err != nil {
			WriteServiceError(w, r, err)
			return
		}
		resp, err := h.svc.ExportWallet(r.Context(), req)
		if err != nil {
			WriteServiceError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func optionalDecimal(r *http.Request, key string) (*decimal.Decimal, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", control.ErrInvalidRequest, key, err)
	}
	return &d, nil
}
