package models

// ConnectionStatus reflects the websocket state for one group. Rebuilt on
// every reconnect attempt; only the connection manager's lifecycle events
// mutate it.
type ConnectionStatus struct {
	IsConnected  bool   `json:"is_connected"`
	IsConnecting bool   `json:"is_connecting"`
	LastError    string `json:"last_error,omitempty"`
}
