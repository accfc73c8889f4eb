package codec

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rpattn/entitystore/internal/domain"
)

// Decoder turns a stored extension payload back into an extension
type Decoder func(payload []byte) (domain.Extension, error)

// XMLDecoder decodes payloads into T with encoding/xml. T is expected to
// implement domain.Extension with value receivers.
func XMLDecoder[T domain.Extension]() Decoder {
	return func(payload []byte) (domain.Extension, error) {
		var v T
		if err := xml.Unmarshal(payload, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

type extensionDef struct {
	typeID  string
	version int
	decode  Decoder
}

// ExtensionRegistry maps extension type identifiers, current and legacy, to decoders
type ExtensionRegistry struct {
	mu      sync.RWMutex
	defs    map[string]extensionDef
	aliases map[string]string
}

// NewExtensionRegistry creates an empty registry
func NewExtensionRegistry() *ExtensionRegistry {
	return &ExtensionRegistry{
		defs:    make(map[string]extensionDef),
		aliases: make(map[string]string),
	}
}

// Register adds an extension type with its current version. Aliases are
// legacy identifiers that decode as typeID.
func (r *ExtensionRegistry) Register(typeID string, version int, decode Decoder, aliases ...string) error {
	if strings.TrimSpace(typeID) == "" {
		return fmt.Errorf("extension type identifier is required")
	}
	if decode == nil {
		return fmt.Errorf("extension %s requires a decoder", typeID)
	}
	if version < 0 {
		return fmt.Errorf("extension %s has negative version %d", typeID, version)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.resolveLocked(typeID); taken {
		return fmt.Errorf("extension type %s already registered", typeID)
	}
	for _, alias := range aliases {
		if alias == typeID {
			continue
		}
		if owner, taken := r.resolveLocked(alias); taken {
			return fmt.Errorf("extension alias %s already used by %s", alias, owner)
		}
	}

	r.defs[typeID] = extensionDef{typeID: typeID, version: version, decode: decode}
	for _, alias := range aliases {
		if alias != typeID {
			r.aliases[alias] = typeID
		}
	}
	return nil
}

// Resolve maps a current or legacy identifier to the registered type identifier
func (r *ExtensionRegistry) Resolve(typeID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveLocked(typeID)
}

// Version returns the current version of a registered extension type
func (r *ExtensionRegistry) Version(typeID string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[typeID]
	return def.version, ok
}

// Types lists the registered extension types in sorted order
func (r *ExtensionRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.defs))
	for typeID := range r.defs {
		types = append(types, typeID)
	}
	sort.Strings(types)
	return types
}

func (r *ExtensionRegistry) lookup(typeID string) (extensionDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	resolved, ok := r.resolveLocked(typeID)
	if !ok {
		return extensionDef{}, false
	}
	return r.defs[resolved], true
}

func (r *ExtensionRegistry) resolveLocked(typeID string) (string, bool) {
	if _, ok := r.defs[typeID]; ok {
		return typeID, true
	}
	current, ok := r.aliases[typeID]
	return current, ok
}
