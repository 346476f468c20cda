// Package description carries snapshots of server and topology capability
// used by operation descriptors to emit version-gated fields and by the
// executor to pick a server matching a caller's selection criteria.
package description

// ServerKind classifies a single server's role within a deployment.
type ServerKind int

const (
	Unknown ServerKind = iota
	Standalone
	RSPrimary
	RSSecondary
	RSArbiter
	RSOther
	Mongos
	LoadBalancer
)

func (k ServerKind) String() string {
	switch k {
	case Standalone:
		return "Standalone"
	case RSPrimary:
		return "RSPrimary"
	case RSSecondary:
		return "RSSecondary"
	case RSArbiter:
		return "RSArbiter"
	case RSOther:
		return "RSOther"
	case Mongos:
		return "Mongos"
	case LoadBalancer:
		return "LoadBalancer"
	default:
		return "Unknown"
	}
}

// ReadPrefMode mirrors the wire-level read preference modes.
type ReadPrefMode int

const (
	PrimaryMode ReadPrefMode = iota
	PrimaryPreferredMode
	SecondaryMode
	SecondaryPreferredMode
	NearestMode
)

// ReadPref is the effective read preference an operation requests.
type ReadPref struct {
	Mode    ReadPrefMode
	TagSets []map[string]string
}

// IsPrimary reports whether this preference requires routing to a primary.
func (p *ReadPref) IsPrimary() bool {
	return p == nil || p.Mode == PrimaryMode
}

// SelectionCriteria constrains which server in a topology may satisfy a
// command. A nil criteria means "the topology's default", which for a
// replica set is the primary.
type SelectionCriteria struct {
	ReadPref *ReadPref
}

// StreamDescription is a snapshot of the selected server's capabilities,
// handed to an operation at build time and again at decode time.
type StreamDescription struct {
	Kind                  ServerKind
	WireVersion           int32
	MaxMessageSizeBytes   int32
	MaxWriteBatchSize     int32
	MaxDocumentSizeBytes  int32
	IsPrimary             bool
	SessionTimeoutMinutes int32
	LogicalSessionTimeout bool
}

// SupportsSessions reports whether the server advertised a logical session
// timeout, the precondition for attaching lsid to any command.
func (sd StreamDescription) SupportsSessions() bool {
	return sd.LogicalSessionTimeout && sd.SessionTimeoutMinutes > 0
}

// SupportsRetryableWrites mirrors the real driver's wire-version gate.
func (sd StreamDescription) SupportsRetryableWrites() bool {
	return sd.SupportsSessions() && sd.WireVersion >= 6 && sd.Kind != Standalone
}
