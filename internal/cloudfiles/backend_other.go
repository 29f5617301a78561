//go:build !windows

package cloudfiles

// localBackend is the fallback for hosts without a cloud filter API. Every
// file is treated as fully local and release is a no-op, which degrades the
// sweep to a plain on-disk batch job.
type localBackend struct{}

// NewPlatformBackend returns the cloud-sync backend for this host.
func NewPlatformBackend() Backend {
	return localBackend{}
}

func (localBackend) Status(string) (State, error) { return StateLocal, nil }

func (localBackend) Hydrate(string) error { return nil }

func (localBackend) Release(string) error { return nil }
