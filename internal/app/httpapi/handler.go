// Package httpapi exposes the library REST API.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	app "github.com/nta-library/library-service/internal/app"
	"github.com/nta-library/library-service/internal/app/auth"
	"github.com/nta-library/library-service/internal/app/domain/book"
	"github.com/nta-library/library-service/internal/app/domain/loan"
	"github.com/nta-library/library-service/internal/app/domain/member"
	"github.com/nta-library/library-service/internal/app/domain/request"
	"github.com/nta-library/library-service/internal/app/domain/reservation"
	"github.com/nta-library/library-service/internal/app/metrics"
	"github.com/nta-library/library-service/internal/app/services/catalog"
	"github.com/nta-library/library-service/internal/app/services/circulation"
	"github.com/nta-library/library-service/internal/app/services/members"
	"github.com/nta-library/library-service/internal/app/services/reservations"
	"github.com/nta-library/library-service/internal/app/storage"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app    *app.Application
	tokens *auth.Manager
	audit  *AuditLog
}

// NewHandler returns a mux exposing the core REST API.
func NewHandler(application *app.Application, tokens *auth.Manager, audit *AuditLog) http.Handler {
	h := &handler{app: application, tokens: tokens, audit: audit}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/", h.auth)
	mux.HandleFunc("/books", h.books)
	mux.HandleFunc("/books/", h.bookResources)
	mux.HandleFunc("/categories", h.categories)
	mux.HandleFunc("/loans", h.loans)
	mux.HandleFunc("/loans/", h.loanResources)
	mux.HandleFunc("/requests/", h.requestResources)
	mux.HandleFunc("/reservations", h.reservations)
	mux.HandleFunc("/reservations/", h.reservationResources)
	mux.HandleFunc("/members", h.members)
	mux.HandleFunc("/members/", h.memberResources)
	mux.HandleFunc("/reports/dashboard", h.reportsDashboard)
	mux.HandleFunc("/audit", h.auditTrail)
	mux.HandleFunc("/healthz", h.healthz)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// invalidateDashboard drops the cached report snapshot after a circulation
// change so staff see current numbers.
func (h *handler) invalidateDashboard(ctx context.Context) {
	h.app.Reports.InvalidateCache(ctx)
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) auth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	switch strings.TrimPrefix(r.URL.Path, "/auth/") {
	case "register":
		var payload struct {
			Username   string `json:"username"`
			Email      string `json:"email"`
			Password   string `json:"password"`
			FullName   string `json:"full_name"`
			Kind       string `json:"kind"`
			Phone      string `json:"phone"`
			Department string `json:"department"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		m, err := h.app.Members.Register(r.Context(), members.RegisterInput{
			Username:   payload.Username,
			Email:      payload.Email,
			Password:   payload.Password,
			FullName:   payload.FullName,
			Kind:       payload.Kind,
			Phone:      payload.Phone,
			Department: payload.Department,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, m)

	case "login":
		var payload struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		m, err := h.app.Members.Authenticate(r.Context(), payload.Username, payload.Password)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		token, err := h.tokens.IssueToken(m)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"token": token, "member": m})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) books(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter := storage.BookFilter{
			Query:      r.URL.Query().Get("q"),
			CategoryID: r.URL.Query().Get("category"),
		}
		if raw := r.URL.Query().Get("available"); raw != "" {
			available, err := strconv.ParseBool(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid available flag %q", raw))
				return
			}
			filter.Available = &available
		}
		books, err := h.app.Catalog.List(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, books)

	case http.MethodPost:
		if !isStaff(r) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var payload struct {
			Serial     string `json:"serial"`
			Shelf      string `json:"shelf"`
			Title      string `json:"title"`
			Author     string `json:"author"`
			ISBN       string `json:"isbn"`
			Barcode    string `json:"barcode"`
			CategoryID string `json:"category_id"`
			Publisher  string `json:"publisher"`
			Pages      int    `json:"pages"`
			Language   string `json:"language"`
			Edition    string `json:"edition"`
			Series     string `json:"series"`
			Keywords   string `json:"keywords"`
			Summary    string `json:"summary"`
			Cover      string `json:"cover"`
			Condition  string `json:"condition"`
			CopyNumber int    `json:"copy_number"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := h.app.Catalog.AddBook(r.Context(), book.Book{
			Serial:     payload.Serial,
			Shelf:      payload.Shelf,
			Title:      payload.Title,
			Author:     payload.Author,
			ISBN:       payload.ISBN,
			Barcode:    payload.Barcode,
			CategoryID: payload.CategoryID,
			Publisher:  payload.Publisher,
			Pages:      payload.Pages,
			Language:   book.Language(payload.Language),
			Edition:    payload.Edition,
			Series:     payload.Series,
			Keywords:   payload.Keywords,
			Summary:    payload.Summary,
			Cover:      book.CoverType(payload.Cover),
			Condition:  book.Condition(payload.Condition),
			CopyNumber: payload.CopyNumber,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) bookResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/books"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	bookID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			b, err := h.app.Catalog.Get(r.Context(), bookID)
			if err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, b)
		case http.MethodPatch:
			if !isStaff(r) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			var payload catalog.BookUpdate
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			updated, err := h.app.Catalog.UpdateBook(r.Context(), bookID, payload)
			if err != nil {
				writeError(w, statusForError(err, http.StatusBadRequest), err)
				return
			}
			writeJSON(w, http.StatusOK, updated)
		case http.MethodDelete:
			if !isStaff(r) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			if err := h.app.Catalog.RemoveBook(r.Context(), bookID); err != nil {
				writeError(w, statusForError(err, http.StatusBadRequest), err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	if len(parts) != 2 || r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	claims := claimsFrom(r)
	if claims == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch parts[1] {
	case "borrow":
		var payload struct {
			MemberID     string `json:"member_id"`
			DurationDays int    `json:"duration_days"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		memberID := claims.MemberID
		if payload.MemberID != "" && payload.MemberID != claims.MemberID {
			// Checking a copy out on someone else's behalf is a desk operation.
			if !isStaff(r) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			memberID = payload.MemberID
		}
		l, err := h.app.Circulation.Borrow(r.Context(), bookID, memberID, payload.DurationDays)
		if err != nil {
			writeError(w, statusForCirculationError(err), err)
			return
		}
		h.invalidateDashboard(r.Context())
		writeJSON(w, http.StatusCreated, l)

	case "reserve":
		var payload struct {
			MemberID string `json:"member_id"`
			Notes    string `json:"notes"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		memberID := claims.MemberID
		if payload.MemberID != "" && payload.MemberID != claims.MemberID {
			if !isStaff(r) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			memberID = payload.MemberID
		}
		res, err := h.app.Reservations.Reserve(r.Context(), bookID, memberID, payload.Notes)
		if err != nil {
			writeError(w, statusForCirculationError(err), err)
			return
		}
		h.invalidateDashboard(r.Context())
		writeJSON(w, http.StatusCreated, res)

	case "requests":
		var payload struct {
			DurationDays int    `json:"duration_days"`
			Notes        string `json:"notes"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		req, err := h.app.Circulation.RequestBorrow(r.Context(), bookID, claims.MemberID, payload.DurationDays, payload.Notes)
		if err != nil {
			writeError(w, statusForCirculationError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, req)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) categories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cats, err := h.app.Catalog.ListCategories(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, cats)
	case http.MethodPost:
		if !isStaff(r) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var payload struct {
			Name string `json:"name"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		cat, err := h.app.Catalog.AddCategory(r.Context(), payload.Name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, cat)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) loans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims := claimsFrom(r)
	if claims == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	filter := storage.LoanFilter{
		MemberID: r.URL.Query().Get("member_id"),
		BookID:   r.URL.Query().Get("book_id"),
		Status:   loan.Status(r.URL.Query().Get("status")),
	}
	if !isStaff(r) {
		// Members only see their own loans.
		filter.MemberID = claims.MemberID
	}
	loans, err := h.app.Circulation.ListLoans(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

func (h *handler) loanResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/loans"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	loanID := parts[0]

	claims := claimsFrom(r)
	if claims == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	l, err := h.app.Circulation.GetLoan(r.Context(), loanID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if !isStaff(r) && l.MemberID != claims.MemberID {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, l)
		return
	}

	if len(parts) != 2 || r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	// Closing a loan is a desk operation.
	if !isStaff(r) {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	switch parts[1] {
	case "return":
		returned, err := h.app.Circulation.Return(r.Context(), loanID)
		if err != nil {
			writeError(w, statusForCirculationError(err), err)
			return
		}
		h.invalidateDashboard(r.Context())
		writeJSON(w, http.StatusOK, returned)
	case "lost":
		var payload struct {
			Notes string `json:"notes"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		lost, err := h.app.Circulation.MarkLost(r.Context(), loanID, payload.Notes)
		if err != nil {
			writeError(w, statusForCirculationError(err), err)
			return
		}
		h.invalidateDashboard(r.Context())
		writeJSON(w, http.StatusOK, lost)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) requestResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/requests"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	claims := claimsFrom(r)
	if claims == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	kind := parts[0]
	if kind != "borrow" && kind != "return" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			memberID := r.URL.Query().Get("member_id")
			if !isStaff(r) {
				memberID = claims.MemberID
			}
			status := request.Status(r.URL.Query().Get("status"))
			if kind == "borrow" {
				reqs, err := h.app.Circulation.ListBorrowRequests(r.Context(), memberID, status)
				if err != nil {
					writeError(w, http.StatusInternalServerError, err)
					return
				}
				writeJSON(w, http.StatusOK, reqs)
				return
			}
			reqs, err := h.app.Circulation.ListReturnRequests(r.Context(), memberID, status)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, reqs)

		case http.MethodPost:
			if kind != "return" {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			var payload struct {
				LoanID string `json:"loan_id"`
				Notes  string `json:"notes"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			req, err := h.app.Circulation.RequestReturn(r.Context(), payload.LoanID, claims.MemberID, payload.Notes)
			if err != nil {
				writeError(w, statusForCirculationError(err), err)
				return
			}
			writeJSON(w, http.StatusCreated, req)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	if len(parts) != 2 || r.Method != http.MethodPatch {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	requestID := parts[1]

	var payload struct {
		Action string `json:"action"`
		Notes  string `json:"notes"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	action := strings.ToLower(strings.TrimSpace(payload.Action))

	if action == "cancel" {
		if kind != "borrow" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("return requests cannot be cancelled"))
			return
		}
		cancelled, err := h.app.Circulation.CancelBorrowRequest(r.Context(), requestID, claims.MemberID)
		if err != nil {
			writeError(w, statusForError(err, http.StatusBadRequest), err)
			return
		}
		writeJSON(w, http.StatusOK, cancelled)
		return
	}

	// Approvals and denials are desk operations.
	if !isStaff(r) {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	switch {
	case kind == "borrow" && action == "approve":
		req, l, err := h.app.Circulation.ApproveBorrowRequest(r.Context(), requestID, claims.MemberID, payload.Notes)
		if err != nil {
			writeError(w, statusForCirculationError(err), err)
			return
		}
		h.invalidateDashboard(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{"request": req, "loan": l})
	case kind == "borrow" && action == "deny":
		req, err := h.app.Circulation.DenyBorrowRequest(r.Context(), requestID, claims.MemberID, payload.Notes)
		if err != nil {
			writeError(w, statusForError(err, http.StatusBadRequest), err)
			return
		}
		writeJSON(w, http.StatusOK, req)
	case kind == "return" && action == "approve":
		req, l, err := h.app.Circulation.ApproveReturnRequest(r.Context(), requestID, claims.MemberID, payload.Notes)
		if err != nil {
			writeError(w, statusForCirculationError(err), err)
			return
		}
		h.invalidateDashboard(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{"request": req, "loan": l})
	case kind == "return" && action == "deny":
		req, err := h.app.Circulation.DenyReturnRequest(r.Context(), requestID, claims.MemberID, payload.Notes)
		if err != nil {
			writeError(w, statusForError(err, http.StatusBadRequest), err)
			return
		}
		writeJSON(w, http.StatusOK, req)
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported action %q", payload.Action))
	}
}

func (h *handler) reservations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims := claimsFrom(r)
	if claims == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	filter := storage.ReservationFilter{
		MemberID: r.URL.Query().Get("member_id"),
		BookID:   r.URL.Query().Get("book_id"),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		filter.Status = reservationStatus(raw)
	}
	if !isStaff(r) {
		filter.MemberID = claims.MemberID
	}
	list, err := h.app.Reservations.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) reservationResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/reservations"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 1 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	reservationID := parts[0]

	claims := claimsFrom(r)
	if claims == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	res, err := h.app.Reservations.Get(r.Context(), reservationID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if !isStaff(r) && res.MemberID != claims.MemberID {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, res)
	case http.MethodDelete:
		ownerID := claims.MemberID
		if isStaff(r) {
			ownerID = ""
		}
		cancelled, err := h.app.Reservations.Cancel(r.Context(), reservationID, ownerID)
		if err != nil {
			writeError(w, statusForCirculationError(err), err)
			return
		}
		h.invalidateDashboard(r.Context())
		writeJSON(w, http.StatusOK, cancelled)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) members(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isStaff(r) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	list, err := h.app.Members.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) memberResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/members"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	claims := claimsFrom(r)
	if claims == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	memberID := parts[0]
	if memberID == "me" {
		memberID = claims.MemberID
	}
	if !isStaff(r) && memberID != claims.MemberID {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			m, err := h.app.Members.Get(r.Context(), memberID)
			if err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, m)
		case http.MethodPatch:
			h.patchMember(w, r, memberID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	switch parts[1] {
	case "loans":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		loans, err := h.app.Circulation.ListLoans(r.Context(), storage.LoanFilter{MemberID: memberID})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, loans)

	case "reservations":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		list, err := h.app.Reservations.List(r.Context(), storage.ReservationFilter{MemberID: memberID})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, list)

	case "messages":
		h.memberMessages(w, r, memberID, parts[2:])

	case "fines":
		if len(parts) != 3 || parts[2] != "pay" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var payload struct {
			Amount float64 `json:"amount"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		m, err := h.app.Members.PayFine(r.Context(), memberID, payload.Amount)
		if err != nil {
			writeError(w, statusForError(err, http.StatusBadRequest), err)
			return
		}
		writeJSON(w, http.StatusOK, m)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) patchMember(w http.ResponseWriter, r *http.Request, memberID string) {
	var payload struct {
		Email              *string `json:"email"`
		FullName           *string `json:"full_name"`
		Phone              *string `json:"phone"`
		Department         *string `json:"department"`
		MaxBooks           *int    `json:"max_books"`
		EmailNotifications *bool   `json:"email_notifications"`
		Status             *string `json:"status"`
		Role               *string `json:"role"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if payload.MaxBooks != nil && !isStaff(r) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if payload.Status != nil && !isStaff(r) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if payload.Role != nil && !isAdmin(r) {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	m, err := h.app.Members.UpdateProfile(r.Context(), memberID, members.Update{
		Email:              payload.Email,
		FullName:           payload.FullName,
		Phone:              payload.Phone,
		Department:         payload.Department,
		MaxBooks:           payload.MaxBooks,
		EmailNotifications: payload.EmailNotifications,
	})
	if err != nil {
		writeError(w, statusForError(err, http.StatusBadRequest), err)
		return
	}
	if payload.Status != nil {
		m, err = h.app.Members.SetStatus(r.Context(), memberID, member.Status(*payload.Status))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if payload.Role != nil {
		m, err = h.app.Members.SetRole(r.Context(), memberID, member.Role(*payload.Role))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *handler) memberMessages(w http.ResponseWriter, r *http.Request, memberID string, rest []string) {
	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		inbox, err := h.app.Notify.Inbox(r.Context(), memberID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, inbox)
		return
	}

	if len(rest) != 1 || r.Method != http.MethodPatch {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	var payload struct {
		Read *bool `json:"read"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.Read == nil || !*payload.Read {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read must be true"))
		return
	}
	msg, err := h.app.Notify.MarkRead(r.Context(), rest[0], memberID)
	if err != nil {
		writeError(w, statusForError(err, http.StatusBadRequest), err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *handler) reportsDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isStaff(r) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	dash, err := h.app.Reports.DashboardSnapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (h *handler) auditTrail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isAdmin(r) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if h.audit == nil {
		writeJSON(w, http.StatusOK, []AuditEntry{})
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	writeJSON(w, http.StatusOK, h.audit.listLimit(limit))
}

func reservationStatus(raw string) reservation.Status {
	return reservation.Status(strings.ToLower(strings.TrimSpace(raw)))
}

func statusForError(err error, fallback int) int {
	if errors.Is(err, sql.ErrNoRows) || strings.Contains(err.Error(), "not found") {
		return http.StatusNotFound
	}
	return fallback
}

// statusForCirculationError maps domain policy failures onto HTTP statuses.
func statusForCirculationError(err error) int {
	switch {
	case errors.Is(err, sql.ErrNoRows) || strings.Contains(err.Error(), "not found"):
		return http.StatusNotFound
	case errors.Is(err, circulation.ErrBookUnavailable),
		errors.Is(err, circulation.ErrLoanClosed),
		errors.Is(err, reservations.ErrBookAvailable),
		errors.Is(err, reservations.ErrDuplicateReservation),
		errors.Is(err, reservations.ErrReservationClosed):
		return http.StatusConflict
	case errors.Is(err, circulation.ErrMemberInactive),
		errors.Is(err, circulation.ErrBorrowLimitReached),
		errors.Is(err, circulation.ErrOutstandingFines):
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
