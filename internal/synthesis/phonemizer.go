package synthesis

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"voxstudio/pkg/logger"
)

const (
	DefaultEspeakPath    = "/usr/bin/espeak-ng"
	DefaultEspeakLibrary = "/usr/lib/x86_64-linux-gnu/libespeak-ng.so"
)

var ErrEspeakNotFound = errors.New("eSpeak-NG executable not found")

// Phonemizer is the eSpeak-NG setup handed to the model server
type Phonemizer struct {
	Path    string
	Library string // empty means the server falls back to its default
}

// CheckPhonemizer verifies the eSpeak-NG installation. A missing executable
// makes synthesis unavailable; a missing library only logs a warning.
func CheckPhonemizer(path, library string) (Phonemizer, error) {
	if _, err := os.Stat(path); err != nil {
		return Phonemizer{}, fmt.Errorf("%w at %s: %v", ErrEspeakNotFound, path, err)
	}

	p := Phonemizer{Path: path}
	if library == "" {
		return p, nil
	}
	if _, err := os.Stat(library); err != nil {
		logger.Warn("eSpeak-NG library not found, falling back to default",
			zap.String("library", library))
		return p, nil
	}

	p.Library = library
	return p, nil
}
