package plugin

// Kind identifies a native listener family.
type Kind string

const (
	KindTagDiscovered  Kind = "TagDiscoveredListener"
	KindNdef           Kind = "NdefListener"
	KindNdefFormatable Kind = "NdefFormatableListener"
	KindMimeType       Kind = "MimeTypeListener"
)

var fixedKinds = []Kind{KindTagDiscovered, KindNdef, KindNdefFormatable}

// FixedKinds returns the listener kinds registered once per service, in
// registration order.
func FixedKinds() []Kind {
	return append([]Kind(nil), fixedKinds...)
}

// Fixed reports whether k is registered once rather than per MIME type.
func (k Kind) Fixed() bool {
	return k == KindTagDiscovered || k == KindNdef || k == KindNdefFormatable
}

// Valid reports whether k is a known listener kind.
func (k Kind) Valid() bool {
	return k.Fixed() || k == KindMimeType
}

// Capabilities is the set of listener kinds a plugin supports.
type Capabilities map[Kind]bool

// AllCapabilities returns a set containing every listener kind.
func AllCapabilities() Capabilities {
	return Capabilities{
		KindTagDiscovered:  true,
		KindNdef:           true,
		KindNdefFormatable: true,
		KindMimeType:       true,
	}
}

// Has reports whether kind is in the set.
func (c Capabilities) Has(kind Kind) bool {
	return c[kind]
}

// Kinds returns the supported kinds in a stable order.
func (c Capabilities) Kinds() []Kind {
	var kinds []Kind
	for _, k := range append(FixedKinds(), KindMimeType) {
		if c[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// CapabilitiesOf computes the listener kinds p supports from the interfaces
// it implements. If p also implements CapabilityReporter the result is
// narrowed to the kinds it reports.
func CapabilitiesOf(p Plugin) Capabilities {
	caps := Capabilities{}
	if p == nil {
		return caps
	}
	if _, ok := p.(TagDiscoveredListeners); ok {
		caps[KindTagDiscovered] = true
	}
	if _, ok := p.(NdefListeners); ok {
		caps[KindNdef] = true
	}
	if _, ok := p.(NdefFormatableListeners); ok {
		caps[KindNdefFormatable] = true
	}
	if _, ok := p.(MimeTypeListeners); ok {
		caps[KindMimeType] = true
	}

	if r, ok := p.(CapabilityReporter); ok {
		reported := r.Capabilities()
		for k := range caps {
			if !reported.Has(k) {
				delete(caps, k)
			}
		}
	}
	return caps
}
