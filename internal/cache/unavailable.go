package cache

import "github.com/goblinnotes/goblin/internal/failure"

// UnavailableStore is a store that refuses every operation, the equivalent
// of a browser that blocks storage access entirely.
type UnavailableStore struct{}

func (UnavailableStore) Get(string) ([]byte, bool, error) {
	return nil, false, failure.ErrStorageUnavailable
}

func (UnavailableStore) Put(string, []byte) error {
	return failure.ErrStorageUnavailable
}

func (UnavailableStore) Delete(string) error {
	return failure.ErrStorageUnavailable
}

func (UnavailableStore) Keys() ([]string, error) {
	return nil, failure.ErrStorageUnavailable
}

func (UnavailableStore) Close() error {
	return nil
}

// OpenStore opens the store selected by cfg.
func OpenStore(cfg *StoreConfig) (Store, error) {
	switch cfg.Backend {
	case BackendSQLite, "":
		return OpenSQLiteStore(cfg.Path, cfg.Capacity)
	case BackendDisk:
		return NewDiskCache(cfg.Path, cfg.Capacity, cfg.CompressionLevel)
	case BackendMemory:
		return NewQuotaMemoryCache(cfg.Capacity), nil
	case BackendNone:
		return UnavailableStore{}, nil
	default:
		return nil, failure.New(failure.CodeInvalidIdentifier, "unknown cache backend "+string(cfg.Backend), nil)
	}
}
