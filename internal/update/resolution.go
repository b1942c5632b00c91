package update

import "context"

// Resolution is how an update check ended for the purposes of startup.
type Resolution int

const (
	// ResolveLaunch continues starting the running build.
	ResolveLaunch Resolution = iota
	// ResolveRestart hands over to another process; the running build exits
	// without launching its window.
	ResolveRestart
)

func (r Resolution) String() string {
	if r == ResolveRestart {
		return "restart"
	}
	return "launch"
}

// Resolver runs an update check to completion.
type Resolver interface {
	Source
	Resolve(ctx context.Context) (Resolution, error)
}
