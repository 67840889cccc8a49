package transform

import "fmt"

// PlatformVersion is the runtime platform a project builds against. The zero
// value is the lowest supported version.
type PlatformVersion int

const (
	PlatformVersionJDK8 PlatformVersion = iota
	PlatformVersionJDK11
	PlatformVersionJDK17
)

// PlatformVersions lists every supported version, lowest first.
var PlatformVersions = []PlatformVersion{PlatformVersionJDK8, PlatformVersionJDK11, PlatformVersionJDK17}

func (v PlatformVersion) String() string {
	switch v {
	case PlatformVersionJDK8:
		return "JDK8"
	case PlatformVersionJDK11:
		return "JDK11"
	case PlatformVersionJDK17:
		return "JDK17"
	default:
		return fmt.Sprintf("PlatformVersion(%d)", int(v))
	}
}

// Valid reports whether v is a member of the supported set.
func (v PlatformVersion) Valid() bool {
	return v >= PlatformVersionJDK8 && v <= PlatformVersionJDK17
}

// ParsePlatformVersion converts a string like "JDK11" to a PlatformVersion.
func ParsePlatformVersion(s string) (PlatformVersion, error) {
	switch s {
	case "JDK8", "jdk8", "8", "1.8":
		return PlatformVersionJDK8, nil
	case "JDK11", "jdk11", "11":
		return PlatformVersionJDK11, nil
	case "JDK17", "jdk17", "17":
		return PlatformVersionJDK17, nil
	default:
		return PlatformVersionJDK8, fmt.Errorf("unsupported platform version %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v PlatformVersion) MarshalText() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("unsupported platform version %d", int(v))
	}
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *PlatformVersion) UnmarshalText(text []byte) error {
	parsed, err := ParsePlatformVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ValidateUpgrade is the pre-flight compatibility check run before a
// transformation starts: both versions must be supported and the target must
// be newer than the source.
func ValidateUpgrade(source, target PlatformVersion) error {
	if !source.Valid() || !target.Valid() {
		return fmt.Errorf("%w: %s to %s", ErrIncompatibleVersions, source, target)
	}
	if target <= source {
		return fmt.Errorf("%w: target %s is not newer than source %s", ErrIncompatibleVersions, target, source)
	}
	return nil
}
