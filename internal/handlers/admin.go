package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"lotteria/internal/db"
	"lotteria/internal/lottery"
	"lotteria/internal/middleware"
	"lotteria/internal/models"
)

// LoginForm renders the admin login page.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Title string
		Flash *flash
	}{
		Title: "Admin Login",
		Flash: flashFromRequest(r),
	}
	h.render(w, "admin_login.html", data)
}

// Login verifies credentials against the stored bcrypt hash and issues a
// session cookie.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad form", http.StatusBadRequest)
		return
	}
	username := r.FormValue("username")
	password := r.FormValue("password")

	user, err := db.AdminByUsername(r.Context(), h.conn, username)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !user.VerifyPassword(password)) {
		redirectWithFlash(w, r, "/admin/login", "danger", "Invalid username or password.")
		return
	}
	if err != nil {
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}

	token := h.sessions.Issue()
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	h.log.Info().Str("username", username).Msg("admin logged in")
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// Logout revokes the session and clears the cookie.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookie); err == nil {
		h.sessions.Revoke(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: middleware.SessionCookie, Value: "", Path: "/", MaxAge: -1})
	redirectWithFlash(w, r, "/admin/login", "info", "Logged out successfully.")
}

// Dashboard lists every draw, newest first.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	draws, err := h.svc.ListDraws(r.Context())
	if err != nil {
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}
	data := struct {
		Title string
		Flash *flash
		Draws []models.Draw
	}{
		Title: "Admin Dashboard",
		Flash: flashFromRequest(r),
		Draws: draws,
	}
	h.render(w, "admin_dashboard.html", data)
}

// CreateDrawForm renders the draw creation form.
func (h *Handlers) CreateDrawForm(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Title string
		Flash *flash
	}{
		Title: "Create Draw",
		Flash: flashFromRequest(r),
	}
	h.render(w, "admin_create_draw.html", data)
}

// CreateDraw creates a draw with its full ticket pool.
func (h *Handlers) CreateDraw(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad form", http.StatusBadRequest)
		return
	}
	name := r.FormValue("name")
	totalTickets, _ := strconv.Atoi(r.FormValue("total_tickets"))
	price, _ := strconv.ParseFloat(r.FormValue("ticket_price"), 64)

	draw, err := h.svc.CreateDraw(r.Context(), name, totalTickets, price)
	if errors.Is(err, lottery.ErrValidation) {
		redirectWithFlash(w, r, "/admin/draws/new", "warning", "Name, a positive ticket count and a positive price are required.")
		return
	}
	if err != nil {
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}
	redirectWithFlash(w, r, "/admin", "success",
		fmt.Sprintf("Draw %q created with %d tickets!", draw.Name, draw.TotalTickets))
}

// AdminDrawDetails shows the full ticket table, winners, status counts and
// collected pot for a draw.
func (h *Handlers) AdminDrawDetails(w http.ResponseWriter, r *http.Request) {
	drawID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid draw id", http.StatusBadRequest)
		return
	}

	draw, err := h.svc.GetDraw(r.Context(), drawID)
	if errors.Is(err, lottery.ErrNotFound) {
		http.Error(w, "Draw not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}

	tickets, err := h.svc.TicketsForDraw(r.Context(), drawID)
	if err != nil {
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}
	winners, err := h.svc.WinnersForDraw(r.Context(), drawID)
	if err != nil {
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}
	counts, err := h.svc.StatusCounts(r.Context(), drawID)
	if err != nil {
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}
	pot, err := h.svc.CollectedPot(r.Context(), drawID)
	if err != nil {
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}

	type statusCounts struct {
		Available, Pending, Approved, Won int
	}
	data := struct {
		Title   string
		Flash   *flash
		Draw    *models.Draw
		Tickets []models.Ticket
		Winners []models.Winner
		Counts  statusCounts
		Pot     float64
	}{
		Title:   "Admin - " + draw.Name,
		Flash:   flashFromRequest(r),
		Draw:    draw,
		Tickets: tickets,
		Winners: winners,
		Counts: statusCounts{
			Available: counts[models.StatusAvailable],
			Pending:   counts[models.StatusPendingPayment],
			Approved:  counts[models.StatusApproved],
			Won:       counts[models.StatusWon],
		},
		Pot: pot,
	}
	h.render(w, "admin_draw_details.html", data)
}

// ticketAction runs a lifecycle operation on a ticket and redirects back to
// the owning draw's admin page with an outcome message.
func (h *Handlers) ticketAction(w http.ResponseWriter, r *http.Request, op func(int64) error, okText string) {
	ticketID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid ticket id", http.StatusBadRequest)
		return
	}

	var drawID int64
	if err := h.conn.QueryRowContext(r.Context(), "SELECT draw_id FROM tickets WHERE id = ?", ticketID).Scan(&drawID); err != nil {
		http.Error(w, "Ticket not found", http.StatusNotFound)
		return
	}
	target := fmt.Sprintf("/admin/draws/%d", drawID)

	err = op(ticketID)
	switch {
	case err == nil:
		redirectWithFlash(w, r, target, "success", okText)
	case errors.Is(err, lottery.ErrInvalidTransition):
		redirectWithFlash(w, r, target, "warning", "Ticket is not in pending status.")
	case errors.Is(err, lottery.ErrNotFound):
		redirectWithFlash(w, r, target, "warning", "Ticket no longer exists.")
	default:
		h.log.Error().Err(err).Int64("ticket_id", ticketID).Msg("ticket action failed")
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

// ApprovePayment confirms a pending payment.
func (h *Handlers) ApprovePayment(w http.ResponseWriter, r *http.Request) {
	h.ticketAction(w, r, func(id int64) error { return h.svc.Approve(r.Context(), id) }, "Ticket approved.")
}

// RejectPayment reverts a pending ticket to available.
func (h *Handlers) RejectPayment(w http.ResponseWriter, r *http.Request) {
	h.ticketAction(w, r, func(id int64) error { return h.svc.Reject(r.Context(), id) }, "Ticket reverted to available.")
}

// DeleteTicket removes a ticket row entirely.
func (h *Handlers) DeleteTicket(w http.ResponseWriter, r *http.Request) {
	h.ticketAction(w, r, func(id int64) error { return h.svc.DeleteTicket(r.Context(), id) }, "Ticket deleted.")
}

// ExecuteDraw runs the one-shot winner selection.
func (h *Handlers) ExecuteDraw(w http.ResponseWriter, r *http.Request) {
	drawID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid draw id", http.StatusBadRequest)
		return
	}
	target := fmt.Sprintf("/admin/draws/%d", drawID)

	err = h.svc.Execute(r.Context(), drawID)
	switch {
	case err == nil:
		redirectWithFlash(w, r, target, "success", "🎉 Draw executed! Winners selected.")
	case errors.Is(err, lottery.ErrAlreadyExecuted):
		redirectWithFlash(w, r, target, "info", "Draw already executed!")
	case errors.Is(err, lottery.ErrNoEligibleTickets):
		redirectWithFlash(w, r, target, "danger", "No approved tickets to draw winners!")
	case errors.Is(err, lottery.ErrNotFound):
		http.Error(w, "Draw not found", http.StatusNotFound)
	default:
		h.log.Error().Err(err).Int64("draw_id", drawID).Msg("execute failed")
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

// ResetDraw deletes all winners and tickets and clears the drawn flag.
func (h *Handlers) ResetDraw(w http.ResponseWriter, r *http.Request) {
	drawID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid draw id", http.StatusBadRequest)
		return
	}
	target := fmt.Sprintf("/admin/draws/%d", drawID)

	err = h.svc.Reset(r.Context(), drawID)
	switch {
	case err == nil:
		redirectWithFlash(w, r, target, "success", "Draw has been reset. All tickets and winners deleted.")
	case errors.Is(err, lottery.ErrNotFound):
		http.Error(w, "Draw not found", http.StatusNotFound)
	default:
		h.log.Error().Err(err).Int64("draw_id", drawID).Msg("reset failed")
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

// DeleteDraw removes the draw and everything it owns.
func (h *Handlers) DeleteDraw(w http.ResponseWriter, r *http.Request) {
	drawID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid draw id", http.StatusBadRequest)
		return
	}

	err = h.svc.DeleteDraw(r.Context(), drawID)
	switch {
	case err == nil:
		redirectWithFlash(w, r, "/admin", "success", "Draw and all related tickets/winners deleted.")
	case errors.Is(err, lottery.ErrNotFound):
		http.Error(w, "Draw not found", http.StatusNotFound)
	default:
		h.log.Error().Err(err).Int64("draw_id", drawID).Msg("delete draw failed")
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

// DeleteWinner removes a single winner row; its ticket drops back to
// approved.
func (h *Handlers) DeleteWinner(w http.ResponseWriter, r *http.Request) {
	winnerID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid winner id", http.StatusBadRequest)
		return
	}

	var drawID int64
	if err := h.conn.QueryRowContext(r.Context(), "SELECT draw_id FROM winners WHERE id = ?", winnerID).Scan(&drawID); err != nil {
		http.Error(w, "Winner not found", http.StatusNotFound)
		return
	}
	target := fmt.Sprintf("/admin/draws/%d", drawID)

	err = h.svc.DeleteWinner(r.Context(), winnerID)
	switch {
	case err == nil:
		redirectWithFlash(w, r, target, "success", "Winner deleted.")
	case errors.Is(err, lottery.ErrNotFound):
		redirectWithFlash(w, r, target, "warning", "Winner no longer exists.")
	default:
		h.log.Error().Err(err).Int64("winner_id", winnerID).Msg("delete winner failed")
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}
