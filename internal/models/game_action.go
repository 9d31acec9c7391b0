package models

// GameActionRecord is one entry of a room's action history, consumed by the historian.
type GameActionRecord struct {
	RoomCode      string                 `json:"room_code"`
	GameID        string                 `json:"game_id,omitempty"`
	ActionIndex   int                    `json:"action_index"`
	ActorPlayerID string                 `json:"actor_player_id,omitempty"`
	ActionType    string                 `json:"action_type"`
	ActionPayload map[string]interface{} `json:"action_payload"`
	Timestamp     int64                  `json:"timestamp"`
}
