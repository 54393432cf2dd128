// Package sim provides the shared identifier and scalar types used by
// every subsystem of the settlement simulation.
package sim

import "github.com/google/uuid"

// AgentID uniquely identifies an agent. IDs are never reused, even after
// the agent dies.
type AgentID uuid.UUID

// NewAgentID returns a fresh random agent id.
func NewAgentID() AgentID { return AgentID(uuid.New()) }

func (id AgentID) String() string { return uuid.UUID(id).String() }

// IsZero reports whether the id is the zero value (no agent).
func (id AgentID) IsZero() bool { return id == AgentID{} }

func (id AgentID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *AgentID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }

// MarketID uniquely identifies a market.
type MarketID uuid.UUID

// NewMarketID returns a fresh random market id.
func NewMarketID() MarketID { return MarketID(uuid.New()) }

func (id MarketID) String() string { return uuid.UUID(id).String() }

func (id MarketID) IsZero() bool { return id == MarketID{} }

func (id MarketID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *MarketID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }

// BuildingID uniquely identifies a building.
type BuildingID uuid.UUID

// NewBuildingID returns a fresh random building id.
func NewBuildingID() BuildingID { return BuildingID(uuid.New()) }

func (id BuildingID) String() string { return uuid.UUID(id).String() }

func (id BuildingID) IsZero() bool { return id == BuildingID{} }

func (id BuildingID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *BuildingID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }

// NodeID uniquely identifies a resource node.
type NodeID uuid.UUID

// NewNodeID returns a fresh random node id.
func NewNodeID() NodeID { return NodeID(uuid.New()) }

func (id NodeID) String() string { return uuid.UUID(id).String() }

func (id NodeID) IsZero() bool { return id == NodeID{} }

func (id NodeID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *NodeID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }

// OrderID uniquely identifies a trade order.
type OrderID uuid.UUID

// NewOrderID returns a fresh random order id.
func NewOrderID() OrderID { return OrderID(uuid.New()) }

func (id OrderID) String() string { return uuid.UUID(id).String() }

func (id OrderID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *OrderID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
