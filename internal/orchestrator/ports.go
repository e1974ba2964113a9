package orchestrator

import (
	"fmt"
	"net"
	"strconv"
)

// PortConflictError reports ports that are already bound before launch.
type PortConflictError struct {
	Conflicts map[string]int // service name -> occupied port
}

func (e *PortConflictError) Error() string {
	return fmt.Sprintf("ports already in use: %v (stop the conflicting processes or pass --force)", e.Conflicts)
}

// CheckPortsFree verifies that every managed service's port is still free by
// briefly binding it. Run before launch so a half-started fleet is not torn
// down thirty seconds in because one port was taken all along.
func (o *Orchestrator) CheckPortsFree() error {
	conflicts := make(map[string]int)
	for _, spec := range o.specs {
		if spec.Port <= 0 {
			continue
		}
		ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(spec.Port)))
		if err != nil {
			conflicts[spec.Name] = spec.Port
			continue
		}
		ln.Close()
	}
	if len(conflicts) > 0 {
		return &PortConflictError{Conflicts: conflicts}
	}
	return nil
}
