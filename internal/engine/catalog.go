package engine

import (
	"log/slog"

	"github.com/raphaelgruber/pdfstract-go/internal/config"
)

// Catalog builds the default engine handles in display order and applies
// any overrides from the engines file. Disabled engines are dropped.
func Catalog(cfg config.Config, overrides map[string]config.EngineOverride, logger *slog.Logger) []Handle {
	if logger == nil {
		logger = slog.Default()
	}

	handles := []Handle{
		newPopplerEngine(),
		newMupdfEngine(),
		newMarkitdownEngine(),
		newDoclingEngine(),
		newMarkerEngine(),
		newTesseractEngine(cfg.TesseractLang, cfg.MaxPages),
		newOllamaEngine(cfg.OllamaHost, cfg.OllamaModel, cfg.MaxPages),
		newBedrockEngine(cfg.BedrockModel, cfg.AWSRegion, cfg.MaxPages),
	}
	if len(overrides) == 0 {
		return handles
	}

	out := make([]Handle, 0, len(handles))
	for _, h := range handles {
		ov, ok := overrides[h.Name()]
		if !ok {
			out = append(out, h)
			continue
		}
		if ov.Disabled {
			logger.Debug("engine disabled by configuration", "engine", h.Name())
			continue
		}
		if c, ok := h.(customizable); ok {
			c.applyOverride(ov)
		}
		out = append(out, h)
	}
	return out
}
