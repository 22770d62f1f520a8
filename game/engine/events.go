package engine

// EventType names an event raised to rendering and HUD clients
type EventType string

const (
	EventTileChanged      EventType = "tile_changed"
	EventTileRemoved      EventType = "tile_removed"
	EventTileSpawned      EventType = "tile_spawned"
	EventScoreChanged     EventType = "score_changed"
	EventComboChanged     EventType = "combo_changed"
	EventWildMeterChanged EventType = "wild_meter_changed"
	EventBoardClean       EventType = "board_clean"
	EventGameOver         EventType = "game_over"
	EventBoardDealt       EventType = "board_dealt"
)

// Event is a single change notification. Only the fields relevant to Type are set.
type Event struct {
	Type       EventType `json:"type"`
	Coord      *Coord    `json:"coord,omitempty"`
	Value      int       `json:"value,omitempty"`
	Depth      int       `json:"depth,omitempty"`
	Wild       bool      `json:"wild,omitempty"`
	Delta      uint64    `json:"delta,omitempty"`
	Total      uint64    `json:"total,omitempty"`
	Count      uint32    `json:"count,omitempty"`
	Ratio      float64   `json:"ratio,omitempty"`
	Bonus      uint64    `json:"bonus,omitempty"`
	FinalScore uint64    `json:"final_score,omitempty"`
	Level      uint32    `json:"level,omitempty"`
}

// EventSink receives events after the board releases its lock
type EventSink func(Event)

func tileChanged(c Coord, t Tile) Event {
	return Event{Type: EventTileChanged, Coord: &c, Value: t.Value, Depth: t.StackDepth}
}

func tileRemoved(c Coord) Event {
	return Event{Type: EventTileRemoved, Coord: &c}
}

func tileSpawned(c Coord, t Tile) Event {
	return Event{Type: EventTileSpawned, Coord: &c, Value: t.Value, Wild: t.IsWild()}
}

func scoreChanged(delta, total uint64) Event {
	return Event{Type: EventScoreChanged, Delta: delta, Total: total}
}

func comboChanged(count uint32) Event {
	return Event{Type: EventComboChanged, Count: count}
}

func wildMeterChanged(ratio float64) Event {
	return Event{Type: EventWildMeterChanged, Ratio: ratio}
}

func boardClean(bonus uint64) Event {
	return Event{Type: EventBoardClean, Bonus: bonus}
}

func gameOver(final uint64) Event {
	return Event{Type: EventGameOver, FinalScore: final}
}

func boardDealt(level uint32) Event {
	return Event{Type: EventBoardDealt, Level: level}
}
