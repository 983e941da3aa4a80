package configs

import (
	"github.com/magiconair/properties"
	"os"
	"time"
)

// NodeTuning holds the node-local knobs that are not part of the
// replicated membership protocol: timeouts, the checkpoint directory,
// and the inbound connection concurrency cap. Unlike the teacher's
// participant roster (a JSON file loaded once at boot), none of this
// is protocol state - the roster itself travels over the wire via
// REGISTER/MEMBERS - so it belongs in a small local properties file
// instead.
type NodeTuning struct {
	SendTimeout   time.Duration
	ReadTimeout   time.Duration
	CheckpointDir string
	MaxConns      int
}

func DefaultTuning() *NodeTuning {
	return &NodeTuning{
		SendTimeout:   SendTimeout,
		ReadTimeout:   ReadTimeout,
		CheckpointDir: CheckpointDir,
		MaxConns:      MaxConnectionHandler,
	}
}

// LoadTuning reads a .properties file if present and overlays it onto
// the defaults. A missing file is not an error - nodes run fine on
// defaults alone, in the spirit of the teacher's give-up-quietly
// loadConfig. Only the given path is tried.
func LoadTuning(path string) *NodeTuning {
	t := DefaultTuning()
	if path == "" {
		return t
	}
	if _, err := os.Stat(path); err != nil {
		return t
	}
	p, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		Warn(false, "failed to load node properties from "+path+": "+err.Error())
		return t
	}
	t.SendTimeout = p.GetParsedDuration("send_timeout", t.SendTimeout)
	t.ReadTimeout = p.GetParsedDuration("read_timeout", t.ReadTimeout)
	t.CheckpointDir = p.GetString("checkpoint_dir", t.CheckpointDir)
	t.MaxConns = p.GetInt("max_conns", t.MaxConns)
	return t
}
