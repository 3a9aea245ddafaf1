package datastruct

import "errors"

var (
	// Lifecycle errors.
	ErrUninitialized = errors.New("datastruct: manager was not properly initialized")
	ErrStopping      = errors.New("datastruct: manager is stopping")

	// Header errors.
	ErrConfigurationConflict = errors.New("datastruct: structure with the same name but different configuration already exists")
	ErrInvalidName           = errors.New("datastruct: structure name must not be empty")

	// Handle state errors.
	ErrStructureRemoved   = errors.New("datastruct: structure has been removed")
	ErrStructureBlocked   = errors.New("datastruct: structure is being removed")
	ErrClientDisconnected = errors.New("datastruct: client disconnected from cluster")

	// Member errors.
	ErrUnsupportedMember = errors.New("datastruct: unsupported member type")

	// Backend capability errors.
	ErrNoCacheProvider  = errors.New("datastruct: separated structures require a cache provider")
	ErrNotTransactional = errors.New("datastruct: cache does not support locking")
)
