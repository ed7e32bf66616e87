// Package api serves the simulation over HTTP.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (command surface).
// /api/v1/stream pushes flushed simulation events over a websocket.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/astralforge/starhold/internal/bus"
	"github.com/astralforge/starhold/internal/config"
	"github.com/astralforge/starhold/internal/crafting"
	"github.com/astralforge/starhold/internal/economy"
	"github.com/astralforge/starhold/internal/engine"
	"github.com/astralforge/starhold/internal/persistence"
	"github.com/astralforge/starhold/internal/resource"
	"github.com/astralforge/starhold/internal/simerr"
)

const (
	maxStreamConns   = 8
	streamBufferSize = 256
	writeWait        = 10 * time.Second
)

// Server serves the simulation state over HTTP.
type Server struct {
	Runner   *engine.Runner
	Store    *persistence.Store
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
	RelayKey string // Bearer token for the stream endpoint. Empty = streaming disabled.

	streamMu    sync.Mutex
	streamConns map[*streamClient]struct{}
}

type streamClient struct {
	conn *websocket.Conn
	send chan bus.Event
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	s.streamConns = make(map[*streamClient]struct{})
	s.Runner.Do(func(w *engine.World) error {
		w.Bus.Subscribe("api.stream", s.broadcast)
		return nil
	})

	// Endpoints that do simulation work per request share a per-caller
	// spend budget.
	limits := newThrottle(throttleBudget, throttleWindow)

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/markets", s.handleMarkets)
	mux.HandleFunc("/api/v1/market/", s.handleMarketDetail)
	mux.HandleFunc("/api/v1/routes", s.handleRoutes)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/jobs", s.adminOnly(s.handleJobs))
	mux.HandleFunc("/api/v1/job/", s.adminOnly(s.handleJobDetail))
	mux.HandleFunc("/api/v1/skills", s.handleSkills)
	mux.HandleFunc("/api/v1/network", s.handleNetwork)
	mux.HandleFunc("/api/v1/inventory", s.handleInventory)
	mux.HandleFunc("/api/v1/journal", s.handleJournal)
	mux.HandleFunc("/api/v1/plan", throttled(limits, planCost, s.handlePlan))

	// Websocket streaming endpoint (requires relay token).
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// Command endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/trade", s.adminOnly(s.handleTrade))
	mux.HandleFunc("/api/v1/event", s.adminOnly(s.handleTriggerEvent))
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/advance", s.adminOnly(throttled(limits, advanceCost, s.handleAdvance)))
	mux.HandleFunc("/api/v1/save", s.adminOnly(s.handleSave))
	mux.HandleFunc("/api/v1/load", s.adminOnly(s.handleLoad))
	mux.HandleFunc("/api/v1/saves", s.handleSaves)

	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "relay_auth", s.RelayKey != "")

	go func() {
		handler := corsMiddleware(mux)
		if err := http.ListenAndServe(addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list; localhost dev servers are
// always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request carries the admin token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through for endpoints serving both methods.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "command endpoints disabled (no STARHOLD_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var status map[string]any
	s.Runner.Do(func(wd *engine.World) error {
		status = map[string]any{
			"name":          "Starhold",
			"tick":          wd.Tick(),
			"sim_time_s":    wd.Now(),
			"game_hours":    wd.Cfg.GameHours(wd.Now()),
			"speed":         s.Runner.Speed(),
			"running":       s.Runner.Running(),
			"markets":       len(wd.Economy.MarketIDs()),
			"active_events": len(wd.Economy.Events.Active()),
			"active_ripples": len(wd.Economy.Ripples.Active()),
			"active_jobs":   len(wd.Crafting.Jobs()),
			"network_nodes": len(wd.Network.NodeIDs()),
			"home_market":   wd.HomeMarket.String(),
		}
		return nil
	})
	writeJSON(w, status)
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	type marketSummary struct {
		ID          string   `json:"id"`
		Region      string   `json:"region"`
		Resources   int      `json:"tracked_resources"`
		Specialized []string `json:"specialized"`
	}

	var result []marketSummary
	s.Runner.Do(func(wd *engine.World) error {
		for _, id := range wd.Economy.MarketIDs() {
			mk, err := wd.Economy.Market(id)
			if err != nil {
				continue
			}
			ms := marketSummary{ID: id.String(), Region: id.Region, Resources: len(mk.TrackedResources())}
			for _, res := range mk.TrackedResources() {
				if mk.Specialized[res] {
					ms.Specialized = append(ms.Specialized, res.String())
				}
			}
			result = append(result, ms)
		}
		return nil
	})
	writeJSON(w, result)
}

// handleMarketDetail serves GET /api/v1/market/:region/:market with quotes,
// supply/demand, and optional price history.
func (s *Server) handleMarketDetail(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/api/v1/market/")
	id, err := economy.ParseMarketID(raw)
	if err != nil {
		http.Error(w, "usage: /api/v1/market/:region/:market", http.StatusBadRequest)
		return
	}
	withHistory := r.URL.Query().Get("history") == "true"

	type resourceEntry struct {
		Resource   string               `json:"resource"`
		BuyPrice   int64                `json:"buy_price"`
		SellPrice  int64                `json:"sell_price"`
		Supply     float64              `json:"supply"`
		Demand     float64              `json:"demand"`
		Trend      string               `json:"trend"`
		Volatility string               `json:"volatility"`
		History    []economy.PricePoint `json:"history,omitempty"`
	}

	var (
		result  map[string]any
		httpErr error
	)
	s.Runner.Do(func(wd *engine.World) error {
		mk, err := wd.Economy.Market(id)
		if err != nil {
			httpErr = err
			return nil
		}
		eng, err := wd.Economy.Engine(id)
		if err != nil {
			httpErr = err
			return nil
		}

		var entries []resourceEntry
		for _, res := range mk.TrackedResources() {
			q, err := eng.Quote(res)
			if err != nil {
				continue
			}
			sd, err := mk.Record(res)
			if err != nil {
				continue
			}
			e := resourceEntry{
				Resource:   res.String(),
				BuyPrice:   q.CurrentBuy,
				SellPrice:  q.CurrentSell,
				Supply:     sd.CurrentSupply,
				Demand:     sd.BaseDemand,
				Trend:      q.Trend.String(),
				Volatility: q.Volatility.String(),
			}
			if withHistory {
				if h, err := mk.History(res); err == nil {
					e.History = h.Points()
				}
			}
			entries = append(entries, e)
		}
		result = map[string]any{
			"id":        id.String(),
			"region":    id.Region,
			"resources": entries,
		}
		return nil
	})
	if httpErr != nil {
		writeError(w, httpErr)
		return
	}
	writeJSON(w, result)
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	var result map[string]any
	s.Runner.Do(func(wd *engine.World) error {
		result = map[string]any{
			"routes":        wd.Economy.Analyzer.Routes(),
			"opportunities": wd.Economy.Analyzer.Opportunities(),
		}
		return nil
	})
	writeJSON(w, result)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	type eventEntry struct {
		ID         string   `json:"id"`
		Template   string   `json:"template"`
		Severity   string   `json:"severity"`
		Markets    []string `json:"markets"`
		RemainingS float64  `json:"remaining_s"`
	}

	var (
		active  []eventEntry
		history []eventEntry
	)
	s.Runner.Do(func(wd *engine.World) error {
		now := wd.Now()
		for _, ev := range wd.Economy.Events.Active() {
			active = append(active, eventEntry{
				ID:         ev.ID,
				Template:   ev.TemplateID,
				Severity:   ev.Severity.String(),
				Markets:    marketNames(ev.Markets),
				RemainingS: ev.RemainingS(now),
			})
		}
		for _, ev := range wd.Economy.Events.History() {
			history = append(history, eventEntry{
				ID:       ev.ID,
				Template: ev.TemplateID,
				Severity: ev.Severity.String(),
				Markets:  marketNames(ev.Markets),
			})
		}
		return nil
	})
	writeJSON(w, map[string]any{"active": active, "history": history})
}

func marketNames(ids []economy.MarketID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// handleTrade executes a buy or sell against one market on behalf of the
// commander inventory.
func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Market   string `json:"market"`
		Resource string `json:"resource"`
		Quantity int64  `json:"quantity"`
		Side     string `json:"side"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	id, err := economy.ParseMarketID(req.Market)
	if err != nil {
		writeError(w, err)
		return
	}
	res, ok := resource.Parse(req.Resource)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown resource %q", req.Resource), http.StatusBadRequest)
		return
	}
	var side economy.TradeSide
	switch req.Side {
	case "buy":
		side = economy.SideBuy
	case "sell":
		side = economy.SideSell
	default:
		http.Error(w, `side must be "buy" or "sell"`, http.StatusBadRequest)
		return
	}

	var total int64
	err = s.Runner.Do(func(wd *engine.World) error {
		var err error
		total, err = wd.Economy.ExecuteTrade(id, res, req.Quantity, side, wd.Inventory)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"market":   req.Market,
		"resource": req.Resource,
		"quantity": req.Quantity,
		"side":     req.Side,
		"total":    total,
	})
}

// handleTriggerEvent force-activates an event template on named markets.
func (s *Server) handleTriggerEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Template string   `json:"template"`
		Markets  []string `json:"markets"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	ids := make([]economy.MarketID, 0, len(req.Markets))
	for _, m := range req.Markets {
		id, err := economy.ParseMarketID(m)
		if err != nil {
			writeError(w, err)
			return
		}
		ids = append(ids, id)
	}

	var eventID string
	err := s.Runner.Do(func(wd *engine.World) error {
		ev, err := wd.Economy.Events.Trigger(req.Template, ids, wd.Now())
		if err != nil {
			return err
		}
		eventID = ev.ID
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"event_id": eventID, "template": req.Template})
}

// handleJobs lists jobs on GET and starts one on POST.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Recipe   string `json:"recipe"`
			Quantity int64  `json:"quantity"`
			Facility string `json:"facility,omitempty"`
			Priority int    `json:"priority,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		var jobID string
		err := s.Runner.Do(func(wd *engine.World) error {
			var err error
			jobID, err = wd.Crafting.StartJob(req.Recipe, req.Quantity, req.Facility, req.Priority)
			return err
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"job_id": jobID})
		return
	}

	var jobs []*crafting.Job
	s.Runner.Do(func(wd *engine.World) error {
		for _, id := range wd.Crafting.Jobs() {
			if j, err := wd.Crafting.Job(id); err == nil {
				jc := *j
				jobs = append(jobs, &jc)
			}
		}
		return nil
	})
	writeJSON(w, jobs)
}

// handleJobDetail serves GET /api/v1/job/:id and POST
// /api/v1/job/:id/{cancel,pause,resume}.
func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/v1/job/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "missing job id", http.StatusBadRequest)
		return
	}
	jobID := parts[0]

	if r.Method == http.MethodPost && len(parts) >= 2 {
		var err error
		switch parts[1] {
		case "cancel":
			refund := r.URL.Query().Get("refund") != "false"
			err = s.Runner.Do(func(wd *engine.World) error {
				_, err := wd.Crafting.CancelJob(jobID, refund)
				return err
			})
		case "pause":
			err = s.Runner.Do(func(wd *engine.World) error {
				return wd.Crafting.PauseJob(jobID)
			})
		case "resume":
			err = s.Runner.Do(func(wd *engine.World) error {
				return wd.Crafting.ResumeJob(jobID)
			})
		default:
			http.Error(w, "unknown job action (use: cancel, pause, resume)", http.StatusBadRequest)
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"job_id": jobID, "action": parts[1], "success": true})
		return
	}

	var (
		job     crafting.Job
		findErr error
	)
	s.Runner.Do(func(wd *engine.World) error {
		j, err := wd.Crafting.Job(jobID)
		if err != nil {
			findErr = err
			return nil
		}
		job = *j
		return nil
	})
	if findErr != nil {
		writeError(w, findErr)
		return
	}
	writeJSON(w, job)
}

func (s *Server) handleSkills(w http.ResponseWriter, r *http.Request) {
	var result map[string]any
	s.Runner.Do(func(wd *engine.World) error {
		ss := wd.Crafting.Skills()
		result = map[string]any{
			"skills":       ss.Skills(),
			"masteries":    ss.Masteries(),
			"skill_points": ss.SkillPoints,
			"total_xp":     ss.TotalXPGranted,
		}
		return nil
	})
	writeJSON(w, result)
}

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	type nodeEntry struct {
		ID         string  `json:"id"`
		Kind       string  `json:"kind"`
		State      string  `json:"state"`
		Recipe     string  `json:"recipe,omitempty"`
		Efficiency float64 `json:"efficiency"`
		Processed  int64   `json:"total_items_processed"`
	}
	type lineEntry struct {
		ID         string  `json:"id"`
		Nodes      int     `json:"nodes"`
		Rate       float64 `json:"production_rate"`
		Efficiency float64 `json:"efficiency"`
	}

	var (
		nodes []nodeEntry
		lines []lineEntry
		conns int
	)
	s.Runner.Do(func(wd *engine.World) error {
		for _, id := range wd.Network.NodeIDs() {
			n, err := wd.Network.Node(id)
			if err != nil {
				continue
			}
			nodes = append(nodes, nodeEntry{
				ID:         n.ID,
				Kind:       string(n.Kind),
				State:      string(n.State),
				Recipe:     n.RecipeID,
				Efficiency: n.Efficiency(),
				Processed:  n.TotalItemsProcessed,
			})
		}
		for _, id := range wd.Network.LineIDs() {
			l, err := wd.Network.Line(id)
			if err != nil {
				continue
			}
			eff, _ := wd.Network.LineEfficiency(l.ID)
			lines = append(lines, lineEntry{
				ID:         l.ID,
				Nodes:      len(l.NodeIDs),
				Rate:       l.ProductionRate(),
				Efficiency: eff,
			})
		}
		conns = len(wd.Network.ConnectionIDs())
		return nil
	})
	writeJSON(w, map[string]any{
		"nodes":       nodes,
		"connections": conns,
		"lines":       lines,
	})
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	inv := make(map[string]int64)
	s.Runner.Do(func(wd *engine.World) error {
		for res, n := range wd.Inventory.Snapshot() {
			inv[res.String()] = n
		}
		return nil
	})
	writeJSON(w, inv)
}

// handlePlan runs the production chain planner. POST body names the target
// recipe; use optimal=true for variation-aware profit ranking.
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Recipe       string `json:"recipe"`
		Quantity     int64  `json:"quantity"`
		UseInventory bool   `json:"use_inventory"`
		Optimal      bool   `json:"optimal"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Quantity < 1 {
		req.Quantity = 1
	}

	var plan *crafting.Plan
	err := s.Runner.Do(func(wd *engine.World) error {
		var err error
		if req.Optimal {
			plan, err = wd.Planner.OptimalPlan(req.Recipe, req.Quantity, wd.Inventory, req.UseInventory)
		} else {
			plan, err = wd.Planner.Plan(req.Recipe, req.Quantity, wd.Inventory, req.UseInventory)
		}
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, plan)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		applied := s.Runner.SetSpeed(req.Speed)
		slog.Info("speed changed", "requested", req.Speed, "applied", applied)
	}
	writeJSON(w, map[string]float64{"speed": s.Runner.Speed()})
}

// handleAdvance manually steps the simulation, useful when the loop is
// paused or under test harness control.
func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Seconds float64 `json:"seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Seconds <= 0 || req.Seconds > 3600 {
		http.Error(w, "seconds must be in (0, 3600]", http.StatusBadRequest)
		return
	}

	var tick uint64
	err := s.Runner.Do(func(wd *engine.World) error {
		// Step at the frame interval so cadence-sensitive subsystems see
		// normal dt values.
		step := wd.Cfg.FrameIntervalS
		if step <= 0 {
			step = 0.05
		}
		remaining := req.Seconds
		for remaining > 0 {
			dt := step
			if remaining < dt {
				dt = remaining
			}
			if _, err := wd.Advance(dt); err != nil {
				return err
			}
			remaining -= dt
		}
		tick = wd.Tick()
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"tick": tick, "advanced_s": req.Seconds})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.Store == nil {
		http.Error(w, "persistence not available", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Slot string `json:"slot"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	var info persistence.SlotInfo
	err := s.Runner.Do(func(wd *engine.World) error {
		snap, err := wd.Snapshot()
		if err != nil {
			return err
		}
		info, err = s.Store.SaveSlot(req.Slot, snap)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, info)
}

// handleLoad restores a save slot. The running world is replaced only if
// the whole snapshot restores cleanly.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.Store == nil {
		http.Error(w, "persistence not available", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Slot string `json:"slot"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	snap, err := s.Store.LoadSlot(req.Slot)
	if err != nil {
		writeError(w, err)
		return
	}

	var cfg config.Config
	s.Runner.Do(func(wd *engine.World) error {
		cfg = *wd.Cfg
		return nil
	})
	restored, err := engine.RestoreWorld(cfg, snap)
	if err != nil {
		writeError(w, err)
		return
	}
	restored.Bus.Subscribe("api.stream", s.broadcast)
	s.Runner.Swap(restored)
	slog.Info("save loaded", "slot", req.Slot, "tick", restored.Tick())
	writeJSON(w, map[string]any{"slot": req.Slot, "tick": restored.Tick()})
}

func (s *Server) handleSaves(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		http.Error(w, "persistence not available", http.StatusServiceUnavailable)
		return
	}
	slots, err := s.Store.Slots()
	if err != nil {
		writeError(w, err)
		return
	}
	if slots == nil {
		slots = []persistence.SlotInfo{}
	}
	writeJSON(w, slots)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		http.Error(w, "persistence not available", http.StatusServiceUnavailable)
		return
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	entries, err := s.Store.RecentJournal(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []persistence.JournalEntry{}
	}
	writeJSON(w, entries)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin is enforced by the relay token below.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStream upgrades to a websocket and forwards flushed simulation
// events. Requires the relay bearer token.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.RelayKey == "" {
		http.Error(w, "streaming disabled (no relay key)", http.StatusForbidden)
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		auth := r.Header.Get("Authorization")
		token = strings.TrimPrefix(auth, "Bearer ")
	}
	if token != s.RelayKey {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	s.streamMu.Lock()
	if len(s.streamConns) >= maxStreamConns {
		s.streamMu.Unlock()
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	s.streamMu.Unlock()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &streamClient{conn: conn, send: make(chan bus.Event, streamBufferSize)}
	s.streamMu.Lock()
	s.streamConns[client] = struct{}{}
	s.streamMu.Unlock()
	slog.Info("stream client connected", "remote", conn.RemoteAddr())

	go s.writePump(client)
	// Reads are only consumed for close detection.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.dropClient(client)
				return
			}
		}
	}()
}

func (s *Server) writePump(c *streamClient) {
	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				s.dropClient(c)
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.dropClient(c)
				return
			}
		}
	}
}

func (s *Server) dropClient(c *streamClient) {
	s.streamMu.Lock()
	if _, ok := s.streamConns[c]; ok {
		delete(s.streamConns, c)
		close(c.send)
	}
	s.streamMu.Unlock()
	c.conn.Close()
}

// broadcast fans a flushed bus event out to every stream client. Slow
// clients lose events rather than stalling the tick.
func (s *Server) broadcast(ev bus.Event) {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	for c := range s.streamConns {
		select {
		case c.send <- ev:
		default:
		}
	}
}

// writeError maps the simulation error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, simerr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, simerr.ErrValidationFailure):
		status = http.StatusBadRequest
	case errors.Is(err, simerr.ErrInsufficient), errors.Is(err, simerr.ErrInfeasible):
		status = http.StatusConflict
	case errors.Is(err, simerr.ErrCapacityExceeded):
		status = http.StatusTooManyRequests
	case errors.Is(err, simerr.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
