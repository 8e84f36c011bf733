package fleet

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdRegistry implements Registry on top of etcd v3, storing one key
// per session under /programatorus/fleet/{gatewayID}/{sessionID}.
type EtcdRegistry struct {
	client *clientv3.Client
}

func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c}, nil
}

func keyFor(gatewayID, sessionID string) string {
	return "/programatorus/fleet/" + gatewayID + "/" + sessionID
}

// Register stores info under a TTL lease and starts a background
// KeepAlive loop. leaseID is kept local rather than on the struct so
// one EtcdRegistry can register many concurrent sessions without the
// leases clobbering each other.
func (r *EtcdRegistry) Register(gatewayID string, info SessionInfo, ttlSeconds int64) error {
	ctx := context.TODO()

	lease, err := r.client.Grant(ctx, ttlSeconds)
	if err != nil {
		return err
	}

	val, err := json.Marshal(info)
	if err != nil {
		return err
	}

	if _, err := r.client.Put(ctx, keyFor(gatewayID, info.SessionID), string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
		}
	}()
	return nil
}

func (r *EtcdRegistry) Deregister(gatewayID string, sessionID string) error {
	_, err := r.client.Delete(context.TODO(), keyFor(gatewayID, sessionID))
	return err
}

func (r *EtcdRegistry) List(gatewayID string) ([]SessionInfo, error) {
	prefix := "/programatorus/fleet/" + gatewayID + "/"
	resp, err := r.client.Get(context.TODO(), prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	sessions := make([]SessionInfo, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var info SessionInfo
		if err := json.Unmarshal(kv.Value, &info); err != nil {
			continue
		}
		sessions = append(sessions, info)
	}
	return sessions, nil
}

// Watch re-lists the full prefix on every change rather than
// incrementally patching the caller's view -- simpler, and the
// session counts involved never make the full re-fetch expensive.
func (r *EtcdRegistry) Watch(gatewayID string) <-chan []SessionInfo {
	ctx := context.TODO()
	out := make(chan []SessionInfo, 1)
	prefix := "/programatorus/fleet/" + gatewayID + "/"

	go func() {
		watchCh := r.client.Watch(ctx, prefix, clientv3.WithPrefix())
		for range watchCh {
			sessions, err := r.List(gatewayID)
			if err != nil {
				continue
			}
			out <- sessions
		}
	}()

	return out
}

var _ Registry = (*EtcdRegistry)(nil)
