package domain

import "errors"

// ErrSessionNotFound is returned when no session is stored under a key.
var ErrSessionNotFound = errors.New("session not found")

// ErrNoTasks is returned when a run is started with an empty task selection.
var ErrNoTasks = errors.New("no tasks selected")

// ErrInvalidSnapshot is returned when a saved session cannot be restored.
var ErrInvalidSnapshot = errors.New("invalid session snapshot")

// ErrNoSession is returned by operations that need an active run.
var ErrNoSession = errors.New("no active session")

// ErrGradingInProgress is returned when a grading run is already executing.
var ErrGradingInProgress = errors.New("grading already in progress")

// ErrUnknownTask is returned when a task id is not part of the catalog or selection.
var ErrUnknownTask = errors.New("unknown task")
