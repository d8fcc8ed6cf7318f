// Package mockportal serves a fake parking reservation site for demos.
//
// The site speaks the form-login and server-rendered calendar the http
// portal driver expects. The status for every date reads "SOLD OUT" until
// a configured number of page loads, then flips to "3 SPOTS LEFT". Along
// the way it occasionally serves a page whose status element is still
// loading, so the retry paths show up in the logs.
package mockportal

import (
	"fmt"
	"html"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// SessionCookie is the cookie set on login.
const SessionCookie = "pw_session"

// Portal is the mock site. The zero value is not usable; call [New].
type Portal struct {
	flipAfter  int
	glitchRate float64
	logger     *slog.Logger

	mu    sync.Mutex
	loads int
	rng   *rand.Rand
}

// New creates a mock portal that becomes available after flipAfter date
// page loads. glitchRate is the chance of serving a page without a status
// element.
func New(flipAfter int, glitchRate float64, logger *slog.Logger) *Portal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Portal{
		flipAfter:  flipAfter,
		glitchRate: glitchRate,
		logger:     logger,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Handler returns the site's routes:
//
//	POST /login           form fields username and password, any non-empty values
//	GET  /book?date=ISO   calendar for the month of date plus the status element
func (p *Portal) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", p.handleLogin)
	mux.HandleFunc("GET /book", p.handleBook)
	return mux
}

// Loads returns the number of date pages served so far.
func (p *Portal) Loads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loads
}

func (p *Portal) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	user := r.PostForm.Get("username")
	if user == "" || r.PostForm.Get("password") == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, `<html><body><p class="error">Invalid username or password</p></body></html>`)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: user, Path: "/", HttpOnly: true})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, `<html><body><nav id="account">Signed in as %s</nav></body></html>`, html.EscapeString(user))
	p.logger.Info("mock login", "user", user)
}

func (p *Portal) handleBook(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie(SessionCookie); err != nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	day, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	p.loads++
	loads := p.loads
	glitch := p.rng.Float64() < p.glitchRate
	p.mu.Unlock()

	status := "SOLD OUT"
	if loads > p.flipAfter {
		status = "3 SPOTS LEFT"
	}
	if loads == p.flipAfter+1 {
		p.logger.Info("mock status change", "date", day.Format("2006-01-02"), "from", "SOLD OUT", "to", status)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprint(w, "<html><body>\n")
	writeCalendar(w, day)
	if glitch && loads <= p.flipAfter {
		_, _ = fmt.Fprint(w, `<div class="spinner">Loading availability...</div>`)
	} else {
		_, _ = fmt.Fprintf(w, `<div id="parking-status">%s</div>`, status)
	}
	_, _ = fmt.Fprint(w, "\n</body></html>")
}

// writeCalendar renders one month in the layout of the real site: a
// container per month with one child per day.
func writeCalendar(w http.ResponseWriter, day time.Time) {
	first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	days := first.AddDate(0, 1, -1).Day()

	_, _ = fmt.Fprintf(w, `<div id="calendar_%d-%02d" class="calendar">`, day.Year(), int(day.Month()))
	for d := 1; d <= days; d++ {
		_, _ = fmt.Fprintf(w, `<div class="day">%d</div>`, d)
	}
	_, _ = fmt.Fprint(w, "</div>\n")
}
