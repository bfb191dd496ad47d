package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"lotteria/internal/lottery"
	"lotteria/internal/middleware"
	"lotteria/internal/models"
)

// Handlers serves the public pages and the admin panel on top of the
// lottery service.
type Handlers struct {
	svc      *lottery.Service
	conn     *sql.DB // admin account lookup only
	sessions *middleware.SessionManager
	log      zerolog.Logger
}

func New(svc *lottery.Service, conn *sql.DB, sessions *middleware.SessionManager, log zerolog.Logger) *Handlers {
	return &Handlers{svc: svc, conn: conn, sessions: sessions, log: log}
}

var tmplFuncs = template.FuncMap{
	"ordinal": models.Ordinal,
	"money":   func(v float64) string { return fmt.Sprintf("$%.2f", v) },
}

// render parses layout + page templates per request.
func (h *Handlers) render(w http.ResponseWriter, tmpl string, data any) {
	t, err := template.New("layout.html").Funcs(tmplFuncs).ParseFiles(
		"web/templates/layout.html",
		"web/templates/"+tmpl,
	)
	if err != nil {
		h.log.Error().Err(err).Str("template", tmpl).Msg("template parse error")
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	if err := t.Execute(w, data); err != nil {
		h.log.Error().Err(err).Str("template", tmpl).Msg("template execute error")
	}
}

// flash is a one-shot message carried across a redirect in the query
// string.
type flash struct {
	Kind string // "success", "info", "warning", "danger"
	Text string
}

func flashFromRequest(r *http.Request) *flash {
	text := r.URL.Query().Get("msg")
	if text == "" {
		return nil
	}
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = "info"
	}
	return &flash{Kind: kind, Text: text}
}

func redirectWithFlash(w http.ResponseWriter, r *http.Request, target, kind, text string) {
	http.Redirect(w, r, target+"?kind="+kind+"&msg="+url.QueryEscape(text), http.StatusSeeOther)
}

// Home lists active draws and recently executed ones.
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	active, err := h.svc.ActiveDraws(r.Context())
	if err != nil {
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}
	drawn, err := h.svc.DrawnDraws(r.Context(), 10)
	if err != nil {
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}

	data := struct {
		Title  string
		Flash  *flash
		Active []models.Draw
		Drawn  []models.Draw
	}{
		Title:  "Lottery Draws",
		Flash:  flashFromRequest(r),
		Active: active,
		Drawn:  drawn,
	}
	h.render(w, "home.html", data)
}

// DrawDetails shows the public ticket grid and winners for one draw.
func (h *Handlers) DrawDetails(w http.ResponseWriter, r *http.Request) {
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

	data := struct {
		Title   string
		Flash   *flash
		Draw    *models.Draw
		Tickets []models.Ticket
		Winners []models.Winner
	}{
		Title:   "Draw - " + draw.Name,
		Flash:   flashFromRequest(r),
		Draw:    draw,
		Tickets: tickets,
		Winners: winners,
	}
	h.render(w, "draw_details.html", data)
}

// Reserve handles the public reservation form. The external id and display
// name are client-supplied and unverified; anyone can claim any id. The
// endpoint is rate-limited, not authenticated.
func (h *Handlers) Reserve(w http.ResponseWriter, r *http.Request) {
	drawID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid draw id", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad form", http.StatusBadRequest)
		return
	}

	target := fmt.Sprintf("/draws/%d", drawID)
	ticketNumber, err := strconv.Atoi(r.FormValue("ticket_number"))
	if err != nil {
		redirectWithFlash(w, r, target, "warning", "Pick a ticket number.")
		return
	}
	externalID := r.FormValue("user_external_id")
	displayName := r.FormValue("user_display_name")

	err = h.svc.Reserve(r.Context(), drawID, ticketNumber, externalID, displayName)
	switch {
	case err == nil:
		redirectWithFlash(w, r, target, "success",
			fmt.Sprintf("Ticket #%d reserved! Please send your payment and wait for admin approval.", ticketNumber))
	case errors.Is(err, lottery.ErrValidation):
		redirectWithFlash(w, r, target, "warning", "All fields are required.")
	case errors.Is(err, lottery.ErrTicketUnavailable):
		redirectWithFlash(w, r, target, "danger", "Ticket unavailable.")
	case errors.Is(err, lottery.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	default:
		h.log.Error().Err(err).Int64("draw_id", drawID).Msg("reserve failed")
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}
