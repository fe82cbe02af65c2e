package job

import "fmt"

// job for the generation worker
type Gen struct {
	FrameID uint64
}

// res from the generation worker
type GenRes struct {
	FrameID uint64
	OK      bool
}

// outcome of one reproduction request
type Outcome struct {
	FrameID uint64
	Worker  int
	OK      bool
	Err     error
}

func (o Outcome) Print() string {
	if o.OK {
		return fmt.Sprintf("frame %d reproduced by worker #%d", o.FrameID, o.Worker)
	}
	return fmt.Sprintf("frame %d failed on worker #%d: %v", o.FrameID, o.Worker, o.Err)
}
