// Package storage defines the per-channel Storage Settings: which content
// slots get persisted, and the five named presets that make that choice
// for an operator (spec §3).
package storage

import (
	"fmt"
	"strings"
)

// Mode is a named preset of storage flags. Operators pick a Mode at the
// channel level; the flag combination it maps to is deterministic.
type Mode string

const (
	ModeDevelopment Mode = "DEVELOPMENT"
	ModeProduction  Mode = "PRODUCTION"
	ModeRaw         Mode = "RAW"
	ModeMetadata    Mode = "METADATA"
	ModeDisabled    Mode = "DISABLED"
)

// ParseMode resolves an operator-supplied mode name (spec §6
// messageStorageMode) into a Mode, case-insensitively. An unrecognized
// name is an error rather than a silent fallback, so a typo in a
// channel definition fails at load time instead of at FromMode's
// default case.
func ParseMode(name string) (Mode, error) {
	switch m := Mode(strings.ToUpper(name)); m {
	case ModeDevelopment, ModeProduction, ModeRaw, ModeMetadata, ModeDisabled:
		return m, nil
	default:
		return "", fmt.Errorf("storage: unknown mode %q", name)
	}
}

// Settings is the full set of boolean flags controlling what a channel
// persists, plus the completion/removal and recovery behaviors.
type Settings struct {
	StoreRaw                    bool
	StoreProcessedRaw           bool
	StoreTransformed            bool
	StoreEncoded                bool
	StoreSent                   bool
	StoreResponse               bool
	StoreResponseTransformed    bool
	StoreProcessedResponse      bool
	StoreSourceMap              bool
	StoreMaps                   bool
	StoreCustomMetadata         bool

	// EncryptData marks every stored content slot's encrypted flag (spec
	// §4: "each content slot has (content, dataType, encrypted)"). It is
	// orthogonal to Mode, so FromMode never sets it; callers apply the
	// channel/destination's own encryptData flag on top.
	EncryptData bool

	RemoveContentOnCompletion     bool
	RemoveOnlyFilteredOnCompletion bool
	RemoveAttachmentsOnCompletion  bool
	MessageRecoveryEnabled         bool
	RawDurable                     bool
	Durable                        bool
}

// FromMode returns the deterministic flag combination for a named mode.
// Unknown modes fall back to ModeProduction's combination, matching the
// engine's "fail safe toward persisting enough to recover" posture.
func FromMode(mode Mode) Settings {
	switch mode {
	case ModeDevelopment:
		return Settings{
			StoreRaw: true, StoreProcessedRaw: true, StoreTransformed: true,
			StoreEncoded: true, StoreSent: true, StoreResponse: true,
			StoreResponseTransformed: true, StoreProcessedResponse: true,
			StoreSourceMap: true, StoreMaps: true, StoreCustomMetadata: true,
			MessageRecoveryEnabled: true, RawDurable: true, Durable: true,
		}
	case ModeRaw:
		return Settings{
			StoreRaw:               true,
			StoreSourceMap:         true,
			MessageRecoveryEnabled: true,
			RawDurable:             true,
			Durable:                true,
		}
	case ModeMetadata:
		return Settings{
			StoreSourceMap:         true,
			MessageRecoveryEnabled: true,
			Durable:                true,
		}
	case ModeDisabled:
		return Settings{}
	case ModeProduction:
		fallthrough
	default:
		return Settings{
			StoreRaw:       true,
			StoreSent:      true,
			StoreResponse:  true,
			StoreSourceMap: true,
			StoreMaps:      true,

			RemoveContentOnCompletion:     true,
			RemoveOnlyFilteredOnCompletion: false,
			MessageRecoveryEnabled:         true,
			RawDurable:                     true,
			Durable:                        true,
		}
	}
}
