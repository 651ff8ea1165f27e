package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/target/tourbook/internal/domain/booking"
	"github.com/target/tourbook/internal/service"
)

// BookingHandlers serves the guarded travel pages and resources.
// Every route is behind the route guard, so a session with an identity is present.
type BookingHandlers struct {
	Svc    *service.BookingService
	Pages  *Pages
	Logger *slog.Logger
}

func (h *BookingHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// PackageDetails renders one package.
// GET /package_details/{id}.
func (h *BookingHandlers) PackageDetails(w http.ResponseWriter, r *http.Request) {
	sess := requireSession(w, r)
	if sess == nil {
		return
	}
	res := h.Svc.GetPackage(r.Context(), sess.Gateway(), chi.URLParam(r, "id"))
	pkg, ok := res.Value()
	if !ok {
		writeAppError(w, r, h.logger(), res.Err())
		return
	}
	h.Pages.Render(w, r, http.StatusOK, "package", pageView{Title: pkg.Title, Identity: sess.Identity(), Data: pkg})
}

// Dashboard renders the admin or customer dashboard, chosen by the resolved role.
// GET /dashboard.
func (h *BookingHandlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	sess := requireSession(w, r)
	if sess == nil {
		return
	}
	snap := sess.Snapshot()
	if !snap.Authenticated() {
		writeSignedOut(w)
		return
	}
	role := sess.Role(r.Context(), snap)
	res := h.Svc.Dashboard(r.Context(), sess.Gateway(), snap.Identity.Email, role.Role)
	summary, ok := res.Value()
	if !ok {
		writeAppError(w, r, h.logger(), res.Err())
		return
	}
	h.Pages.Render(w, r, http.StatusOK, "dashboard", pageView{Title: "Dashboard", Identity: snap.Identity, Data: summary})
}

// ListBookings returns the signed-in identity's bookings.
// GET /bookings.
func (h *BookingHandlers) ListBookings(w http.ResponseWriter, r *http.Request) {
	sess := requireSession(w, r)
	if sess == nil {
		return
	}
	id := sess.Identity()
	if !id.HasEmail() {
		writeSignedOut(w)
		return
	}
	res := h.Svc.ListBookings(r.Context(), sess.Gateway(), id.Email)
	list, ok := res.Value()
	if !ok {
		writeAppError(w, r, h.logger(), res.Err())
		return
	}
	if list == nil {
		list = []booking.Booking{}
	}
	WriteJSON(w, http.StatusOK, list)
}

// CreateBooking books a package for the signed-in identity.
// POST /bookings.
func (h *BookingHandlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	sess := requireSession(w, r)
	if sess == nil {
		return
	}
	id := sess.Identity()
	if !id.HasEmail() {
		writeSignedOut(w)
		return
	}
	var req booking.BookingRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	// Bookings are always made for the signed-in identity.
	req.Email = id.Email
	res := h.Svc.CreateBooking(r.Context(), sess.Gateway(), req)
	created, ok := res.Value()
	if !ok {
		writeAppError(w, r, h.logger(), res.Err())
		return
	}
	WriteJSON(w, http.StatusCreated, created)
}

// CancelBooking cancels one booking.
// DELETE /bookings/{id}.
func (h *BookingHandlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	sess := requireSession(w, r)
	if sess == nil {
		return
	}
	res := h.Svc.CancelBooking(r.Context(), sess.Gateway(), chi.URLParam(r, "id"))
	if !res.OK() {
		writeAppError(w, r, h.logger(), res.Err())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListUsers renders the user administration page.
// GET /admin/users.
func (h *BookingHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	sess := requireSession(w, r)
	if sess == nil {
		return
	}
	res := h.Svc.ListUsers(r.Context(), sess.Gateway())
	users, ok := res.Value()
	if !ok {
		writeAppError(w, r, h.logger(), res.Err())
		return
	}
	if users == nil {
		users = []booking.User{}
	}
	h.Pages.Render(w, r, http.StatusOK, "users", pageView{Title: "Users", Identity: sess.Identity(), Data: users})
}

// PromoteUser grants a user the admin role.
// POST /admin/users/{email}/promote.
func (h *BookingHandlers) PromoteUser(w http.ResponseWriter, r *http.Request) {
	sess := requireSession(w, r)
	if sess == nil {
		return
	}
	res := h.Svc.PromoteUser(r.Context(), sess.Gateway(), chi.URLParam(r, "email"))
	user, ok := res.Value()
	if !ok {
		writeAppError(w, r, h.logger(), res.Err())
		return
	}
	if !wantsJSON(r) {
		navigate(w, r, "/admin/users")
		return
	}
	WriteJSON(w, http.StatusOK, user)
}

// writeSignedOut answers a request whose session signed out after the route guard let it through.
func writeSignedOut(w http.ResponseWriter) {
	WriteError(w, ErrorParams{
		Code:    http.StatusUnauthorized,
		ErrCode: "unauthenticated",
		Err:     errors.New("session is signed out"),
	})
}
