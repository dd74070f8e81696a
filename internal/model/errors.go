package model

import "errors"

// Common errors used across the application
var (
	// Room errors
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomFull          = errors.New("room is full")
	ErrInvalidTransition = errors.New("invalid room status transition")

	// Matchmaking errors
	ErrMatchmakingFailed = errors.New("matchmaking failed")
	ErrNoPlayersFound    = errors.New("no players found")

	// Identity errors
	ErrNotSignedIn        = errors.New("not signed in")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameExists     = errors.New("username already exists")

	// Leaderboard errors
	ErrInvalidResult = errors.New("invalid game result")
)
