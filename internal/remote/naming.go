package remote

import (
	"strings"
	"time"
)

const (
	// DefaultPrefix starts every archive name this client writes.
	DefaultPrefix = "lumen_backup"
	// DefaultDirectory is the container directory under the store root.
	DefaultDirectory = "lumen-backups"
	Extension        = ".zip"

	maxTagLength = 50
)

// Backup is one archive in the remote container.
type Backup struct {
	Name         string
	Href         string
	Size         int64
	LastModified time.Time
	Created      time.Time
	Tag          string
}

// ArchiveName builds <prefix>_<timestamp>_[<tag>].zip. The timestamp is
// ISO 8601 in UTC with ':' and '.' replaced by '-'. An empty tag drops the
// bracketed part.
func ArchiveName(prefix string, at time.Time, tag string) string {
	stamp := at.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)

	name := prefix + "_" + stamp
	if tag = SanitizeTag(tag); tag != "" {
		name += "_[" + tag + "]"
	}
	return name + Extension
}

// SanitizeTag keeps letters, digits, '-' and '_'; everything else becomes
// '_'. The result is capped at 50 characters.
func SanitizeTag(tag string) string {
	tag = strings.TrimSpace(tag)
	var sb strings.Builder
	for _, r := range tag {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
		if sb.Len() >= maxTagLength {
			break
		}
	}
	return sb.String()
}

// ParseArchiveName recovers the creation time and tag from a name written
// by ArchiveName.
func ParseArchiveName(prefix, name string) (time.Time, string, bool) {
	rest, ok := strings.CutPrefix(name, prefix+"_")
	if !ok {
		return time.Time{}, "", false
	}
	rest, ok = strings.CutSuffix(rest, Extension)
	if !ok {
		return time.Time{}, "", false
	}

	stamp, tag := rest, ""
	if i := strings.Index(rest, "_["); i >= 0 && strings.HasSuffix(rest, "]") {
		stamp, tag = rest[:i], rest[i+2:len(rest)-1]
	}

	date, clock, ok := strings.Cut(stamp, "T")
	if !ok {
		return time.Time{}, "", false
	}
	// 15-04-05-000Z back to 15:04:05.000Z
	parts := strings.SplitN(clock, "-", 4)
	if len(parts) != 4 {
		return time.Time{}, "", false
	}
	iso := date + "T" + parts[0] + ":" + parts[1] + ":" + parts[2] + "." + parts[3]
	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		return time.Time{}, "", false
	}
	return t, tag, true
}
