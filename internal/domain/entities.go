package domain

import "errors"

// ErrShipNotFound is returned by entity stores when a referenced ship is missing.
var ErrShipNotFound = errors.New("ship information not found")

// Ship is the root entity of an intake flow; it is upserted by ID.
type Ship struct {
	ID   string
	Name string
	Type string
}

// Mission, Crew and Port rows are insert-only and owned by exactly one Ship.
type Mission struct {
	ID          string
	ShipID      string
	MissionType string
}

type Crew struct {
	ID            string
	ShipID        string
	Size          int
	CommanderName string
	CommanderRank string
}

type Port struct {
	ID       string
	ShipID   string
	HomePort string
}
