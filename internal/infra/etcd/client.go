package etcd

import (
	"fmt"
	"time"

	"inspector-rotation/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	// KeyPrefix is the root of every key the service owns.
	KeyPrefix = "/assign/"
)

func NewClient(endpoints []string, timeout time.Duration) (*clientv3.Client, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	return cli, nil
}

// unavailable marks an etcd failure as a backend outage for callers.
func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, fmt.Errorf(format, args...))
}
