package etcd

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	// NodeDir holds one leased key per running assignd node.
	NodeDir = KeyPrefix + "nodes/"
)

// NodeRegistry announces this node under NodeDir for as long as it is alive.
type NodeRegistry struct {
	client  *clientv3.Client
	logger  *slog.Logger
	leaseID clientv3.LeaseID
	key     string
}

func NewNodeRegistry(client *clientv3.Client, logger *slog.Logger) *NodeRegistry {
	return &NodeRegistry{
		client: client,
		logger: logger.With("component", "node-registry"),
	}
}

// Register writes nodeID -> addr with a lease of ttlSeconds and keeps the
// lease alive until Deregister is called or the process dies.
func (r *NodeRegistry) Register(ctx context.Context, nodeID, addr string, ttlSeconds int64) error {
	r.key = NodeDir + nodeID

	lease, err := r.client.Grant(ctx, ttlSeconds)
	if err != nil {
		return unavailable("failed to grant node lease: %w", err)
	}
	r.leaseID = lease.ID

	if _, err := r.client.Put(ctx, r.key, addr, clientv3.WithLease(r.leaseID)); err != nil {
		return unavailable("failed to put node key: %w", err)
	}

	keepAliveCh, err := r.client.KeepAlive(context.Background(), r.leaseID)
	if err != nil {
		return unavailable("failed to start keep-alive: %w", err)
	}

	go func() {
		for ka := range keepAliveCh {
			r.logger.Debug("node lease refreshed", "lease_id", ka.ID, "ttl", ka.TTL)
		}
		r.logger.Warn("keep-alive channel closed, node registration may have expired", "key", r.key)
	}()

	r.logger.Info("node registered", "key", r.key, "addr", addr)
	return nil
}

// Deregister revokes the lease, which deletes the node key with it.
func (r *NodeRegistry) Deregister(ctx context.Context) error {
	if r.leaseID == clientv3.NoLease {
		return nil
	}
	r.logger.Info("deregistering node", "key", r.key)
	if _, err := r.client.Revoke(ctx, r.leaseID); err != nil {
		return unavailable("failed to revoke node lease: %w", err)
	}
	r.leaseID = clientv3.NoLease
	return nil
}

// Nodes returns the registered node IDs, sorted.
func (r *NodeRegistry) Nodes(ctx context.Context) ([]string, error) {
	resp, err := r.client.Get(ctx, NodeDir, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, unavailable("failed to list nodes: %w", err)
	}
	nodes := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		nodes = append(nodes, strings.TrimPrefix(string(kv.Key), NodeDir))
	}
	sort.Strings(nodes)
	return nodes, nil
}
