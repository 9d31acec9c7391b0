// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes. They give clients a more specific reason for
// the closure than the standard codes.
const (
	BadSubprotocolError    = 3000 // Client connected without the codebreak subprotocol.
	SessionSupersededError = 3001 // The player resumed the session on another connection.
)
