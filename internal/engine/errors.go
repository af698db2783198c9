package engine

import "errors"

var ErrSessionNotFound = errors.New("game session does not exist")
var ErrPlayerNotFound = errors.New("player not found")
var ErrItemNotFound = errors.New("item not found")
var ErrSessionStarted = errors.New("game session already started")
var ErrSessionFull = errors.New("game session full")
var ErrWrongPassword = errors.New("wrong password")
var ErrAlreadyHosting = errors.New("game already in session")
var ErrNotHost = errors.New("player is not the host of this game session")
var ErrWrongState = errors.New("action not allowed in current game state")
var ErrStaleWave = errors.New("requested wave is ahead of the server")
var ErrInvalidPlayer = errors.New("player id is required")
var ErrUnsupportedCommand = errors.New("unsupported command")
var ErrAssetUnavailable = errors.New("item asset could not be read")

// Kind groups errors by how a caller should react to them.
type Kind string

const (
	KindNotFound   Kind = "NotFound"
	KindConflict   Kind = "Conflict"
	KindValidation Kind = "Validation"
	KindInternal   Kind = "Internal"
)

type classified struct {
	err  error
	kind Kind
	code string
}

var taxonomy = []classified{
	{ErrSessionNotFound, KindNotFound, "SessionNotFound"},
	{ErrPlayerNotFound, KindNotFound, "PlayerNotFound"},
	{ErrItemNotFound, KindNotFound, "ItemNotFound"},
	{ErrSessionStarted, KindConflict, "SessionStarted"},
	{ErrSessionFull, KindConflict, "SessionFull"},
	{ErrWrongPassword, KindConflict, "WrongPassword"},
	{ErrAlreadyHosting, KindConflict, "AlreadyHosting"},
	{ErrNotHost, KindConflict, "NotHost"},
	{ErrWrongState, KindValidation, "WrongState"},
	{ErrStaleWave, KindValidation, "StaleWave"},
	{ErrInvalidPlayer, KindValidation, "InvalidPlayer"},
	{ErrUnsupportedCommand, KindValidation, "UnsupportedCommand"},
	{ErrAssetUnavailable, KindInternal, "IOError"},
}

// KindOf reports the category of err. Anything unrecognised is Internal.
func KindOf(err error) Kind {
	_, kind := lookup(err)
	return kind
}

// Code returns the stable error code sent to clients, e.g. "SessionFull".
func Code(err error) string {
	code, _ := lookup(err)
	return code
}

func lookup(err error) (string, Kind) {
	for _, c := range taxonomy {
		if errors.Is(err, c.err) {
			return c.code, c.kind
		}
	}
	return "Internal", KindInternal
}

// AlreadyHostingError carries the id of the session the host already owns.
type AlreadyHostingError struct {
	SessionID int64
}

func (e *AlreadyHostingError) Error() string { return ErrAlreadyHosting.Error() }

func (e *AlreadyHostingError) Unwrap() error { return ErrAlreadyHosting }
