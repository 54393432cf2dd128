// Full-state snapshots: the whole settlement serialized to JSON,
// zstd-compressed, and stored as a blob. Restores read the newest
// snapshot rather than reassembling from row tables.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/tarrenhall/ashgrove/internal/agents"
	"github.com/tarrenhall/ashgrove/internal/buildings"
	"github.com/tarrenhall/ashgrove/internal/economy"
	"github.com/tarrenhall/ashgrove/internal/engine"
	"github.com/tarrenhall/ashgrove/internal/world"
)

// keepSnapshots is how many snapshot generations are retained.
const keepSnapshots = 5

// State is everything needed to resume a simulation.
type State struct {
	SlowTicks int64                         `json:"slow_ticks"`
	Agents    []agents.Agent                `json:"agents"`
	Markets   []economy.Market              `json:"markets"`
	Buildings []buildings.Building          `json:"buildings"`
	Orders    []buildings.ConstructionOrder `json:"orders"`
	Nodes     []world.Node                  `json:"nodes"`
	Currency  economy.CurrencyStats         `json:"currency"`
}

// CaptureState copies the live simulation into a serializable State.
func CaptureState(s *engine.Simulation, slowTicks uint64) State {
	return State{
		SlowTicks: int64(slowTicks),
		Agents:    s.Roster.Snapshot(),
		Markets:   s.Markets.Snapshot(),
		Buildings: s.Buildings.Snapshot(),
		Orders:    s.Orders.Snapshot(),
		Nodes:     s.World.Snapshot(),
		Currency:  s.Currency.Stats(),
	}
}

// SaveSnapshot compresses and stores a full state blob, pruning old
// generations.
func (db *DB) SaveSnapshot(state State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	blob := enc.EncodeAll(raw, nil)
	enc.Close()

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("INSERT INTO snapshots (state) VALUES (?)", blob); err != nil {
		return err
	}
	_, err = tx.Exec(`DELETE FROM snapshots WHERE id NOT IN
		(SELECT id FROM snapshots ORDER BY id DESC LIMIT ?)`, keepSnapshots)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// LoadLatestSnapshot returns the newest stored state, or false when
// the database holds none.
func (db *DB) LoadLatestSnapshot() (State, bool, error) {
	var blob []byte
	err := db.conn.Get(&blob, "SELECT state FROM snapshots ORDER BY id DESC LIMIT 1")
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return State{}, false, nil
		}
		return State{}, false, err
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return State{}, false, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(blob, nil)
	if err != nil {
		return State{}, false, fmt.Errorf("decompress snapshot: %w", err)
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return State{}, false, fmt.Errorf("unmarshal state: %w", err)
	}
	return state, true, nil
}

// RestoreInto loads a state into live subsystems. The targets must be
// freshly constructed and empty.
func RestoreInto(state State, s *engine.Simulation) {
	for _, a := range state.Agents {
		if a.Alive {
			s.Roster.Add(a)
		}
	}
	for i := range state.Markets {
		mk := state.Markets[i]
		s.Markets.Restore(&mk)
	}
	for _, b := range state.Buildings {
		s.Buildings.Add(b)
	}
	for _, o := range state.Orders {
		s.Orders.Restore(o)
	}
	for _, n := range state.Nodes {
		s.World.Add(n)
	}
}
