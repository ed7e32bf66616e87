// Spend throttle for endpoints that burn real simulation work per
// request. Each caller address earns a budget of spend units per window
// and every throttled endpoint charges a cost sized to the work it
// triggers, so one cheap endpoint cannot be starved by hammering an
// expensive one.
package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/astralforge/starhold/internal/simerr"
)

const (
	// Shared per-caller budget, in spend units per window.
	throttleBudget = 120
	throttleWindow = time.Minute

	// Endpoint costs against that budget.
	planCost    = 2  // walks the full production chain
	advanceCost = 10 // runs simulation frames synchronously
)

type throttle struct {
	mu      sync.Mutex
	budget  int
	window  time.Duration
	callers map[string]*spend
	sweepAt time.Time
}

type spend struct {
	used    int
	resetAt time.Time
}

func newThrottle(budget int, window time.Duration) *throttle {
	return &throttle{
		budget:  budget,
		window:  window,
		callers: make(map[string]*spend),
		sweepAt: time.Now().Add(window),
	}
}

// admit charges cost against the caller's current window. When the
// budget is spent it reports false and how long until the window turns
// over.
func (t *throttle) admit(caller string, cost int) (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if now.After(t.sweepAt) {
		t.sweep(now)
	}

	sp, ok := t.callers[caller]
	if !ok || now.After(sp.resetAt) {
		sp = &spend{resetAt: now.Add(t.window)}
		t.callers[caller] = sp
	}
	if sp.used+cost > t.budget {
		return false, sp.resetAt.Sub(now)
	}
	sp.used += cost
	return true, 0
}

// sweep drops callers whose window has lapsed. Runs under mu on the next
// admit after sweepAt rather than on a timer.
func (t *throttle) sweep(now time.Time) {
	for caller, sp := range t.callers {
		if now.After(sp.resetAt) {
			delete(t.callers, caller)
		}
	}
	t.sweepAt = now.Add(t.window)
}

// callerAddr resolves the address requests are budgeted by: the first
// hop of X-Forwarded-For when a proxy set one, else the remote address
// without its port.
func callerAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// throttled wraps a handler with a spend charge. Denied requests get the
// capacity error treatment plus a Retry-After hint.
func throttled(t *throttle, cost int, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok, wait := t.admit(callerAddr(r), cost)
		if !ok {
			secs := int(wait.Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeError(w, simerr.Capacityf("request budget spent, retry in %ds", secs))
			return
		}
		next(w, r)
	}
}
