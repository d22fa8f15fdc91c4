// Package resolver computes the effective endpoint and credential
// configuration for a stage. Resolution is a pure function of
// (stage, org settings, process env) so the fallback lattice can be
// tested without any I/O.
package resolver

import (
	"strings"

	"github.com/Christopher-Schulze/crPipeline-sub000/internal/common"
	"github.com/Christopher-Schulze/crPipeline-sub000/internal/models"
)

// Env is the process-level fallback source, taken from worker config.
type Env struct {
	AIEndpoint  string
	AIKey       string
	OCREndpoint string
	OCRKey      string
}

// EnvFromConfig extracts the resolver's env source from the loaded
// configuration.
func EnvFromConfig(config *common.Config) Env {
	return Env{
		AIEndpoint:  config.AI.Endpoint,
		AIKey:       config.AI.APIKey,
		OCREndpoint: config.OCR.DefaultEndpoint,
		OCRKey:      config.OCR.DefaultAPIKey,
	}
}

// Resolved is the effective per-stage configuration. Empty strings mean
// "not configured"; whether that is fatal depends on the stage handler.
type Resolved struct {
	OCRCommand  string
	OCREndpoint string
	OCRKey      string
	AIEndpoint  string
	AIKey       string
	AIHeaders   []models.HeaderKV
}

// Resolve walks the stage -> org settings -> process env chain and
// returns the first non-empty source per value. Whitespace-only values
// count as empty. ocr_engine="default" suppresses every external OCR
// source and forces the local path.
func Resolve(stage models.Stage, settings *models.OrgSettings, env Env) Resolved {
	resolved := Resolved{
		OCRCommand: clean(stage.Command),
		AIHeaders:  settings.CustomHeaders(),
		AIEndpoint: firstNonEmpty(deref(settingsAIEndpoint(settings)), env.AIEndpoint),
		AIKey:      firstNonEmpty(deref(settingsAIKey(settings)), env.AIKey),
	}

	if stage.OCREngine == models.OCREngineDefault {
		return resolved
	}

	stageEndpoint := ""
	if stage.OCREngine == models.OCREngineExternal {
		stageEndpoint = clean(stage.OCRStageEndpoint)
	}
	resolved.OCREndpoint = firstNonEmpty(stageEndpoint, deref(settingsOCREndpoint(settings)), env.OCREndpoint)
	resolved.OCRKey = firstNonEmpty(clean(stage.OCRStageKey), deref(settingsOCRKey(settings)), env.OCRKey)

	return resolved
}

func settingsAIEndpoint(s *models.OrgSettings) *string {
	if s == nil {
		return nil
	}
	return s.AIEndpoint
}

func settingsAIKey(s *models.OrgSettings) *string {
	if s == nil {
		return nil
	}
	return s.AIKey
}

func settingsOCREndpoint(s *models.OrgSettings) *string {
	if s == nil {
		return nil
	}
	return s.OCREndpoint
}

func settingsOCRKey(s *models.OrgSettings) *string {
	if s == nil {
		return nil
	}
	return s.OCRKey
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return clean(*s)
}

func clean(s string) string {
	return strings.TrimSpace(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
