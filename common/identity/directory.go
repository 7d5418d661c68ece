package identity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/atmopics/share/common/cache"
	"github.com/atmopics/share/common/logger"
	"golang.org/x/sync/singleflight"
)

// HandleLookup resolves a handle to a DID
type HandleLookup interface {
	Resolve(ctx context.Context, handle string) (string, error)
}

// RepoLocator finds the repository host for a DID
type RepoLocator interface {
	Locate(ctx context.Context, did string) (*Location, error)
}

// Directory classifies identifiers and resolves them to repository
// locations, remembering successful lookups in a cache. Failures are never
// cached. Concurrent misses for the same key share one upstream call.
type Directory struct {
	handles HandleLookup
	locator RepoLocator
	cache   cache.Cache
	ttl     time.Duration
	group   singleflight.Group
	log     *logger.Logger
}

// NewDirectory creates a directory. A nil cache disables caching.
func NewDirectory(handles HandleLookup, locator RepoLocator, c cache.Cache, ttl time.Duration, log *logger.Logger) *Directory {
	return &Directory{
		handles: handles,
		locator: locator,
		cache:   c,
		ttl:     ttl,
		log:     log,
	}
}

// ResolveDID returns the DID for a public identifier. DIDs are returned
// as-is without consulting the handle resolver.
func (d *Directory) ResolveDID(ctx context.Context, raw string) (string, error) {
	id, err := Classify(raw)
	if err != nil {
		return "", err
	}
	if id.Kind == KindDID {
		return id.Value, nil
	}

	key := "handle:" + id.Value
	if did, ok := d.cached(ctx, key); ok {
		return string(did), nil
	}

	// Peers share this call, so one caller going away must not fail the rest.
	// The HTTP client timeout still bounds it.
	shared := context.WithoutCancel(ctx)
	v, err, _ := d.group.Do(key, func() (interface{}, error) {
		did, err := d.handles.Resolve(shared, id.Value)
		if err != nil {
			return "", err
		}
		d.store(shared, key, []byte(did))
		return did, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Locate returns the repository location for a DID
func (d *Directory) Locate(ctx context.Context, did string) (*Location, error) {
	key := "pds:" + did
	if raw, ok := d.cached(ctx, key); ok {
		var loc Location
		if err := json.Unmarshal(raw, &loc); err == nil && loc.PDS != "" {
			return &loc, nil
		}
		d.log.Warn("discarding corrupt identity cache entry", "key", key)
	}

	shared := context.WithoutCancel(ctx)
	v, err, _ := d.group.Do(key, func() (interface{}, error) {
		loc, err := d.locator.Locate(shared, did)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(loc); err == nil {
			d.store(shared, key, raw)
		}
		return loc, nil
	})
	if err != nil {
		return nil, err
	}

	loc := *v.(*Location)
	return &loc, nil
}

// Purge drops the cached location of a DID, so the next Locate asks the
// directory again. Used when the cached host stops answering, which is what
// an account migration looks like from here.
func (d *Directory) Purge(ctx context.Context, did string) error {
	if d.cache == nil {
		return nil
	}
	return d.cache.Delete(ctx, "pds:"+did)
}

func (d *Directory) cached(ctx context.Context, key string) ([]byte, bool) {
	if d.cache == nil {
		return nil, false
	}
	val, ok, err := d.cache.Get(ctx, key)
	if err != nil {
		// Cache trouble degrades to an uncached lookup.
		d.log.Warn("identity cache read failed", "key", key, "error", err)
		return nil, false
	}
	return val, ok
}

func (d *Directory) store(ctx context.Context, key string, val []byte) {
	if d.cache == nil {
		return
	}
	if err := d.cache.Set(ctx, key, val, d.ttl); err != nil {
		d.log.Warn("identity cache write failed", "key", key, "error", err)
	}
}
