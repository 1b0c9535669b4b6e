package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

type Settings struct {
	SimType        string `json:"simType"`
	XPlaneHost     string `json:"xplaneHost"`
	XPlanePort     int    `json:"xplanePort"`
	TelemetryAddr  string `json:"telemetryAddr"`
	CommandAddr    string `json:"commandAddr"`
	LocalMode      bool   `json:"localMode"`
	Record         bool   `json:"record"`
	FrameRateHz    int    `json:"frameRateHz"`
	CheckForUpdate bool   `json:"checkForUpdate"`
}

type SettingsService struct {
	mu       sync.RWMutex
	settings Settings
	filePath string
}

func NewSettingsService() *SettingsService {
	configDir, _ := os.UserConfigDir()
	fp := filepath.Join(configDir, "ffb-bridge", "settings.json")

	s := &SettingsService{
		filePath: fp,
		settings: defaultSettings(),
	}
	s.load()
	return s
}

func defaultSettings() Settings {
	return Settings{
		SimType:        "auto",
		XPlaneHost:     "127.0.0.1",
		XPlanePort:     49000,
		TelemetryAddr:  "127.255.255.255:34390",
		CommandAddr:    "127.0.0.1:34391",
		Record:         true,
		FrameRateHz:    30,
		CheckForUpdate: true,
	}
}

func (s *SettingsService) GetSettings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func (s *SettingsService) UpdateSettings(settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return s.save()
}

func (s *SettingsService) load() {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return
	}
	json.Unmarshal(data, &s.settings)
	if s.settings.FrameRateHz <= 0 {
		s.settings.FrameRateHz = 30
	}
}

func (s *SettingsService) save() error {
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(s.settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	return os.WriteFile(s.filePath, data, 0o644)
}
