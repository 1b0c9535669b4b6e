package main

import (
	"log/slog"
	"sync"
)

// DataPointSubscription binds one resolved simulation variable to a
// telemetry key with its formatting parameters.
type DataPointSubscription struct {
	Ref        DataRef
	Name       string
	Key        string
	Kind       DataRefKind
	Precision  int
	Conversion float64
}

// DataPointRegistry holds the runtime-extensible set of telemetry
// subscriptions. It is append-only for the life of the process: a later
// registration with the same key is appended too, and wins at snapshot
// time because map assignment overwrites the earlier value.
type DataPointRegistry struct {
	provider SimDataProvider

	mu   sync.Mutex
	subs []DataPointSubscription
}

func NewDataPointRegistry(provider SimDataProvider) *DataPointRegistry {
	return &DataPointRegistry{provider: provider}
}

// Register resolves name via the provider and appends a subscription. A
// failed lookup drops the registration with a log line; nothing
// propagates, per the bridge's no-fault policy.
func (r *DataPointRegistry) Register(name, key string, kind DataRefKind, precision int, conversion float64) bool {
	ref := r.provider.FindDataRef(name)
	if !ref.Valid() {
		slog.Warn("dataref not found, dropping subscription", "name", name, "key", key)
		return false
	}
	if precision < 0 {
		precision = defaultPrecision
	}

	r.mu.Lock()
	r.subs = append(r.subs, DataPointSubscription{
		Ref:        ref,
		Name:       name,
		Key:        key,
		Kind:       kind,
		Precision:  precision,
		Conversion: conversion,
	})
	r.mu.Unlock()

	slog.Info("subscribed to dataref",
		"name", name, "key", key, "type", kind.String(),
		"precision", precision, "conversion", conversion)
	return true
}

// Subscriptions returns a point-in-time copy so the snapshot builder can
// iterate without holding the lock while a concurrent SUBSCRIBE appends.
func (r *DataPointRegistry) Subscriptions() []DataPointSubscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DataPointSubscription, len(r.subs))
	copy(out, r.subs)
	return out
}

func (r *DataPointRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
