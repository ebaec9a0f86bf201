package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds the sql-backed stores from a bun handle or a
// persistence client.
type RepositoryFactory struct {
	db *bun.DB

	activityStore *ActivityStore
	cachedReader  *CachedActivityReader
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.activityStore != nil {
		return nil
	}
	activityStore, err := NewActivityStore(f.db)
	if err != nil {
		return err
	}
	f.activityStore = activityStore
	return nil
}

// WithCache wraps the activity store in a CachedActivityReader.
func (f *RepositoryFactory) WithCache(cacheService repositorycache.CacheService) (*CachedActivityReader, error) {
	if f == nil || f.activityStore == nil {
		return nil, fmt.Errorf("sqlstore: repository factory has no activity store")
	}
	reader, err := NewCachedActivityReader(f.activityStore, cacheService)
	if err != nil {
		return nil, err
	}
	f.cachedReader = reader
	return reader, nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) ActivityStore() *ActivityStore {
	if f == nil {
		return nil
	}
	return f.activityStore
}

// CachedActivityReader returns the reader built by WithCache, if any.
func (f *RepositoryFactory) CachedActivityReader() *CachedActivityReader {
	if f == nil {
		return nil
	}
	return f.cachedReader
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
