package database

import (
	"context"
	"fmt"
	"sync"
)

var (
	providerMu        sync.RWMutex
	rosterWriter      func() RosterWriter
	attendanceStore   func() AttendanceStore
	backendName       string
	backendRegistered bool
)

// RegisterBackend registers repository constructors of the active storage backend.
// This is called by the cmd package to avoid import cycles between backends.
func RegisterBackend(name string, roster func() RosterWriter, attendance func() AttendanceStore) {
	providerMu.Lock()
	defer providerMu.Unlock()
	backendName = name
	rosterWriter = roster
	attendanceStore = attendance
	backendRegistered = true
}

// ResetBackend clears the registered backend.
func ResetBackend() {
	providerMu.Lock()
	defer providerMu.Unlock()
	backendName = ""
	rosterWriter = nil
	attendanceStore = nil
	backendRegistered = false
}

// IsInitialized returns whether a storage backend has been registered.
func IsInitialized() bool {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return backendRegistered
}

// BackendName returns the name of the registered backend ("postgres", "sqlite").
func BackendName() string {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return backendName
}

// GetRosterReader returns a RosterReader from the registered backend
func GetRosterReader(ctx context.Context) (RosterReader, error) {
	return GetRosterWriter(ctx)
}

// GetRosterWriter returns a RosterWriter from the registered backend
func GetRosterWriter(ctx context.Context) (RosterWriter, error) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	if !backendRegistered {
		return nil, ErrNotInitialized
	}
	if rosterWriter == nil {
		return nil, fmt.Errorf("%s roster repository not registered", backendName)
	}
	return rosterWriter(), nil
}

// GetAttendanceStore returns an AttendanceStore from the registered backend
func GetAttendanceStore(ctx context.Context) (AttendanceStore, error) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	if !backendRegistered {
		return nil, ErrNotInitialized
	}
	if attendanceStore == nil {
		return nil, fmt.Errorf("%s attendance repository not registered", backendName)
	}
	return attendanceStore(), nil
}
