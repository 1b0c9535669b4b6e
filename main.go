package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	settingsService := NewSettingsService()
	settings := settingsService.GetSettings()

	if settings.CheckForUpdate {
		go func() {
			updates := &UpdateService{}
			if _, err := updates.CheckForUpdate(context.Background()); err != nil {
				slog.Warn("update check failed", "error", err)
			}
		}()
	}

	var recorder *RecorderService
	if settings.Record {
		db, err := initDB()
		if err != nil {
			log.Fatal("failed to init database:", err)
		}
		defer db.Close()
		recorder = NewRecorderService(db)
		defer recorder.Stop()
	}

	provider, err := selectProvider(settings)
	if err != nil {
		log.Fatal("failed to connect to simulator:", err)
	}
	defer provider.Disconnect()
	slog.Info("connected to simulator", "provider", provider.Name())

	bridge := NewBridgeService(provider, recorder, settings.TelemetryAddr, settings.CommandAddr)
	if err := bridge.Start(); err != nil {
		log.Fatal("failed to start bridge:", err)
	}
	defer bridge.Stop()

	// A local ticker stands in for the simulator's frame callback; each
	// tick drives one frame of the bridge.
	frameTicker := time.NewTicker(time.Second / time.Duration(settings.FrameRateHz))
	defer frameTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-frameTicker.C:
			bridge.OnFrame()
		case sig := <-sigCh:
			slog.Info("shutting down", "signal", sig.String())
			return
		}
	}
}

// selectProvider picks the simulator connection the same way for "auto"
// as for an explicit choice: SimConnect when available, else X-Plane UDP.
func selectProvider(settings Settings) (SimDataProvider, error) {
	if settings.LocalMode || settings.SimType == "memory" {
		provider := NewDemoProvider()
		return provider, provider.Connect()
	}

	var provider SimDataProvider
	switch settings.SimType {
	case "xplane":
		provider = NewXPlaneProvider(settings.XPlaneHost, settings.XPlanePort)
	case "simconnect":
		provider = NewSimConnectProvider()
		if provider == nil {
			return nil, fmt.Errorf("SimConnect not available on this platform")
		}
	default: // "auto"
		provider = NewSimConnectProvider()
		if provider == nil {
			provider = NewXPlaneProvider(settings.XPlaneHost, settings.XPlanePort)
		}
	}

	if err := provider.Connect(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", provider.Name(), err)
	}
	return provider, nil
}
