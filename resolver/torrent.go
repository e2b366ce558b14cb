package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/anacrolix/torrent"

	"github.com/pithecene-io/magnetmeta/types"
)

// TorrentConfig configures the BitTorrent-backed resolver.
type TorrentConfig struct {
	// DataDir is where the client keeps transient piece data. It should be
	// the batch workspace so that teardown removes everything the client wrote.
	DataDir string
	// ListenPort is the peer listen port. Zero picks a free port.
	ListenPort int
	// NoDHT disables DHT lookups (trackers and peers in the magnet only).
	NoDHT bool
	// DisableIPv6 disables IPv6 peer connections.
	DisableIPv6 bool
}

// TorrentResolver resolves magnet links through a shared BitTorrent client.
//
// The client is started on first use and shared by every concurrent Resolve
// call. It never uploads or seeds. Resolve returns once the metadata
// (info dictionary) has been exchanged with a peer, or when ctx is done.
type TorrentResolver struct {
	cfg TorrentConfig

	startOnce sync.Once
	client    *torrent.Client
	startErr  error

	mu     sync.Mutex
	closed bool

	// Duplicate links share one torrent. waiters counts the Resolve calls
	// holding each torrent; the last one to leave drops it.
	torrentsMu sync.Mutex
	waiters    refCounts[*torrent.Torrent]
}

// NewTorrentResolver creates a resolver. No network activity happens until
// the first Resolve call.
func NewTorrentResolver(cfg TorrentConfig) *TorrentResolver {
	return &TorrentResolver{cfg: cfg}
}

func (r *TorrentResolver) start() (*torrent.Client, error) {
	r.startOnce.Do(func() {
		cc := torrent.NewDefaultClientConfig()
		cc.DataDir = r.cfg.DataDir
		cc.NoUpload = true
		cc.Seed = false
		cc.ListenPort = r.cfg.ListenPort
		cc.NoDHT = r.cfg.NoDHT
		cc.DisableIPv6 = r.cfg.DisableIPv6
		cc.NoDefaultPortForwarding = true

		r.client, r.startErr = torrent.NewClient(cc)
	})
	return r.client, r.startErr
}

// Resolve adds the magnet link and waits for its info dictionary.
func (r *TorrentResolver) Resolve(ctx context.Context, id types.Identifier) (types.Metadata, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return types.Metadata{}, errors.New("torrent resolver is closed")
	}

	cl, err := r.start()
	if err != nil {
		return types.Metadata{}, NewResolveError(Classify(err), fmt.Errorf("start torrent client: %w", err))
	}

	t, err := r.acquire(cl, id)
	if err != nil {
		return types.Metadata{}, NewResolveError(types.FailureProtocol, fmt.Errorf("add magnet: %w", err))
	}
	defer r.release(t)

	select {
	case <-t.GotInfo():
	case <-t.Closed():
		select {
		case <-t.GotInfo():
		default:
			return types.Metadata{}, NewResolveError(types.FailureProtocol, errors.New("torrent dropped before metadata arrived"))
		}
	case <-ctx.Done():
		return types.Metadata{}, ctx.Err()
	}

	return types.Metadata{
		Name:        t.Name(),
		Fingerprint: t.InfoHash().HexString(),
	}, nil
}

// acquire adds the magnet, or joins the torrent already added for the same
// info hash, and registers the caller as one of its waiters.
func (r *TorrentResolver) acquire(cl *torrent.Client, id types.Identifier) (*torrent.Torrent, error) {
	r.torrentsMu.Lock()
	defer r.torrentsMu.Unlock()
	t, err := cl.AddMagnet(string(id))
	if err != nil {
		return nil, err
	}
	r.waiters.acquire(t)
	return t, nil
}

// release drops t once its last waiter has left.
func (r *TorrentResolver) release(t *torrent.Torrent) {
	r.torrentsMu.Lock()
	defer r.torrentsMu.Unlock()
	if r.waiters.release(t) {
		t.Drop()
	}
}

// refCounts counts holders per key. It is not safe for concurrent use.
type refCounts[K comparable] struct {
	n map[K]int
}

func (c *refCounts[K]) acquire(k K) {
	if c.n == nil {
		c.n = make(map[K]int)
	}
	c.n[k]++
}

// release reports whether k has no holders left.
func (c *refCounts[K]) release(k K) bool {
	c.n[k]--
	if c.n[k] > 0 {
		return false
	}
	delete(c.n, k)
	return true
}

// Close shuts the client down. Subsequent Resolve calls fail.
func (r *TorrentResolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	// Waits for an in-flight start, or prevents a later one.
	r.startOnce.Do(func() {
		r.startErr = errors.New("torrent resolver is closed")
	})
	if r.client != nil {
		r.client.Close()
	}
	return nil
}

// Verify TorrentResolver implements Resolver.
var _ Resolver = (*TorrentResolver)(nil)
