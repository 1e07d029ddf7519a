package audiocache

import (
	"fmt"
	"strings"
	"time"
)

// Key addresses at most one live artifact.
type Key struct {
	ItemID   string
	Language string
}

func (k Key) String() string { return k.ItemID + "_" + k.Language }

type State int

const (
	StateAbsent State = iota
	StateGenerating
	StateReady
	StatePlaying
	StateDeleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateGenerating:
		return "generating"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StateDeleted:
		return "deleted"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Artifact is one generated audio file.
type Artifact struct {
	Key       Key
	Path      string
	CreatedAt time.Time
	State     State
}

// EvictionPolicy decides which entries a new artifact displaces.
type EvictionPolicy string

const (
	// EvictGlobal keeps a single artifact across the whole cache.
	EvictGlobal EvictionPolicy = "global"
	// EvictPerKey only replaces the artifact under the same key.
	EvictPerKey EvictionPolicy = "per_key"
)

func ParseEvictionPolicy(s string) (EvictionPolicy, error) {
	switch EvictionPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case EvictGlobal, "":
		return EvictGlobal, nil
	case EvictPerKey:
		return EvictPerKey, nil
	default:
		return "", fmt.Errorf("unknown eviction policy %q", s)
	}
}

var unsafeName = strings.NewReplacer("/", "-", "\\", "-", " ", "-", "..", "-", ":", "-")

// fileName is speech_<item>_<language>_<unixnano>.<ext>.
func fileName(key Key, at time.Time, ext string) string {
	return fmt.Sprintf("speech_%s_%s_%d.%s",
		unsafeName.Replace(key.ItemID), unsafeName.Replace(key.Language), at.UnixNano(), ext)
}
