package orchestrate

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// StatsSnapshot is one point-in-time broadcast: the folded-constant,
// branch, spill and coalesce counters, plus which run and phase produced
// them.
type StatsSnapshot struct {
	Run            RunID                       `json:"run"`
	Phase          string                       `json:"phase"`
	TransformStats statsTransform               `json:"transform"`
	RegallocStats  statsRegalloc                `json:"regalloc"`
}

type statsTransform struct {
	ConstsFolded     int `json:"consts_folded"`
	BranchesFolded   int `json:"branches_folded"`
	PutsElided       int `json:"puts_elided"`
	TargetsForwarded int `json:"targets_forwarded"`
	InstanceOfFolded int `json:"instance_of_folded"`
	NPEsSynthesized  int `json:"npes_synthesized"`
}

type statsRegalloc struct {
	ReiterationCount uint64 `json:"reiteration_count"`
	GlobalSpillMoves uint64 `json:"global_spill_moves"`
	MovesCoalesced   uint64 `json:"moves_coalesced"`
}

// Dashboard upgrades incoming HTTP connections to websockets and fans out
// every StatsSnapshot a running Pool reports, mirroring
// an accept-then-broadcast-to-all-clients shape built for passive
// observers of one analysis run.
type Dashboard struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewDashboard returns a Dashboard ready to be registered as an
// http.Handler, accepting connections from any origin (this is a local
// diagnostics feed, not a public service).
func NewDashboard() *Dashboard {
	return &Dashboard{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  make(map[*websocket.Conn]struct{}),
	}
}

func (d *Dashboard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log().Errorf("dashboard upgrade failed: %s", err)
		return
	}
	d.mu.Lock()
	d.clients[conn] = struct{}{}
	d.mu.Unlock()

	go d.drain(conn)
}

// drain discards whatever a viewer sends (this feed is one-directional)
// and deregisters the connection once it closes.
func (d *Dashboard) drain(conn *websocket.Conn) {
	defer func() {
		d.mu.Lock()
		delete(d.clients, conn)
		d.mu.Unlock()
		conn.Close()
	}()
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

// Broadcast pushes snap to every connected viewer, dropping any connection
// that errors on write.
func (d *Dashboard) Broadcast(snap StatsSnapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		Log().Errorf("dashboard marshal failed: %s", err)
		return
	}

	d.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(d.clients))
	for c := range d.clients {
		conns = append(conns, c)
	}
	d.mu.Unlock()

	for _, c := range conns {
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			d.mu.Lock()
			delete(d.clients, c)
			d.mu.Unlock()
			c.Close()
		}
	}
}

// SnapshotFrom packages a Pool's current totals for Broadcast.
func SnapshotFrom(run RunID, phase string, p *Pool) StatsSnapshot {
	ts := p.TransformStats()
	rs := p.RegallocStats()
	return StatsSnapshot{
		Run:   run,
		Phase: phase,
		TransformStats: statsTransform{
			ConstsFolded:     ts.ConstsFolded,
			BranchesFolded:   ts.BranchesFolded,
			PutsElided:       ts.PutsElided,
			TargetsForwarded: ts.TargetsForwarded,
			InstanceOfFolded: ts.InstanceOfFolded,
			NPEsSynthesized:  ts.NPEsSynthesized,
		},
		RegallocStats: statsRegalloc{
			ReiterationCount: rs.ReiterationCount,
			GlobalSpillMoves: rs.GlobalSpillMoves,
			MovesCoalesced:   rs.MovesCoalesced,
		},
	}
}
