package permit

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"
)

// ============================================================================
// SIGNED GRANT BUNDLES
// ============================================================================

// Checksum returns a stable hash of the role's grant set.
func (r *Role) Checksum() string {
	data, _ := json.Marshal(struct {
		Name        string
		Permissions []Grant
	}{
		Name:        r.Name,
		Permissions: r.Permissions,
	})
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Checksum returns a stable hash of the group's membership and grant set.
func (g *Group) Checksum() string {
	data, _ := json.Marshal(struct {
		Name        string
		Members     []GroupMember
		Permissions []Grant
	}{
		Name:        g.Name,
		Members:     g.Members,
		Permissions: g.Permissions,
	})
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// SignedBundle carries a role/group snapshot with per-entity ed25519
// signatures keyed by "role:<id>" and "group:<id>".
type SignedBundle struct {
	Roles      []*Role           `json:"roles"`
	Groups     []*Group          `json:"groups"`
	Signatures map[string]string `json:"signatures"`
	Meta       map[string]any    `json:"meta,omitempty"`
}

func signChecksum(priv ed25519.PrivateKey, id, checksum string) (string, error) {
	data, err := json.Marshal(struct {
		ID       string
		Checksum string
	}{ID: id, Checksum: checksum})
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(priv, data)
	return base64.StdEncoding.EncodeToString(sig), nil
}

func verifyChecksum(pub ed25519.PublicKey, id, checksum, sigB64 string) (bool, error) {
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return false, err
	}
	data, err := json.Marshal(struct {
		ID       string
		Checksum string
	}{ID: id, Checksum: checksum})
	if err != nil {
		return false, err
	}
	return ed25519.Verify(pub, data, sig), nil
}

// SignBundle signs each role and group with priv and returns a SignedBundle.
func SignBundle(priv ed25519.PrivateKey, roles []*Role, groups []*Group) (*SignedBundle, error) {
	b := &SignedBundle{Roles: roles, Groups: groups, Signatures: make(map[string]string)}
	for _, r := range roles {
		s, err := signChecksum(priv, r.ID, r.Checksum())
		if err != nil {
			return nil, err
		}
		b.Signatures["role:"+r.ID] = s
	}
	for _, g := range groups {
		s, err := signChecksum(priv, g.ID, g.Checksum())
		if err != nil {
			return nil, err
		}
		b.Signatures["group:"+g.ID] = s
	}
	return b, nil
}

// VerifyBundle checks every entity in the bundle against its signature.
func VerifyBundle(pub ed25519.PublicKey, b *SignedBundle) (bool, error) {
	for _, r := range b.Roles {
		sig, ok := b.Signatures["role:"+r.ID]
		if !ok {
			return false, fmt.Errorf("missing signature for role %s", r.ID)
		}
		okv, err := verifyChecksum(pub, r.ID, r.Checksum(), sig)
		if err != nil || !okv {
			return false, fmt.Errorf("bad signature for role %s: %v", r.ID, err)
		}
	}
	for _, g := range b.Groups {
		sig, ok := b.Signatures["group:"+g.ID]
		if !ok {
			return false, fmt.Errorf("missing signature for group %s", g.ID)
		}
		okv, err := verifyChecksum(pub, g.ID, g.Checksum(), sig)
		if err != nil || !okv {
			return false, fmt.Errorf("bad signature for group %s: %v", g.ID, err)
		}
	}
	return true, nil
}

// ApplySignedBundle verifies the bundle and upserts its roles and groups.
func (e *Engine) ApplySignedBundle(ctx context.Context, pub ed25519.PublicKey, bundle *SignedBundle) error {
	ok, err := VerifyBundle(pub, bundle)
	if err != nil || !ok {
		return fmt.Errorf("bundle verification failed: %v", err)
	}
	for _, r := range bundle.Roles {
		existing, err := e.roles.GetRole(ctx, r.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			err = e.CreateRole(ctx, r)
		} else {
			err = e.UpdateRole(ctx, r)
		}
		if err != nil {
			return err
		}
	}
	for _, g := range bundle.Groups {
		existing, err := e.groups.GetGroup(ctx, g.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			err = e.CreateGroup(ctx, g)
		} else {
			err = e.UpdateGroup(ctx, g)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// BUNDLE DISTRIBUTOR
// ============================================================================

type BundleSubscriber interface {
	OnBundle(ctx context.Context, pub ed25519.PublicKey, bundle *SignedBundle) error
}

type BundleSubscriberFunc func(ctx context.Context, pub ed25519.PublicKey, bundle *SignedBundle) error

func (f BundleSubscriberFunc) OnBundle(ctx context.Context, pub ed25519.PublicKey, bundle *SignedBundle) error {
	return f(ctx, pub, bundle)
}

// BundleDistributor snapshots roles and groups, signs them and pushes the
// bundle to registered subscribers when notified of a change.
type BundleDistributor struct {
	roles            RoleStore
	groups           GroupStore
	pub              ed25519.PublicKey
	priv             ed25519.PrivateKey
	rotationInterval time.Duration
	notifyCh         chan struct{}
	stopCh           chan struct{}
	subscribers      []BundleSubscriber
	mu               sync.RWMutex
	started          bool
	wg               sync.WaitGroup
}

type BundleDistributorOption func(*BundleDistributor)

func WithBundleSigningKey(priv ed25519.PrivateKey) BundleDistributorOption {
	return func(d *BundleDistributor) {
		if priv != nil && len(priv) == ed25519.PrivateKeySize {
			d.priv = append(ed25519.PrivateKey{}, priv...)
			d.pub = priv.Public().(ed25519.PublicKey)
		}
	}
}

func WithBundleRotationInterval(interval time.Duration) BundleDistributorOption {
	return func(d *BundleDistributor) {
		if interval > 0 {
			d.rotationInterval = interval
		}
	}
}

func NewBundleDistributor(roles RoleStore, groups GroupStore, opts ...BundleDistributorOption) (*BundleDistributor, error) {
	if roles == nil || groups == nil {
		return nil, fmt.Errorf("role and group stores are required")
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	dist := &BundleDistributor{
		roles:            roles,
		groups:           groups,
		priv:             priv,
		pub:              pub,
		rotationInterval: 24 * time.Hour,
		notifyCh:         make(chan struct{}, 1),
		stopCh:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(dist)
	}
	return dist, nil
}

func (d *BundleDistributor) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.rotationInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stopCh:
				return
			case <-d.notifyCh:
				if err := d.distribute(ctx); err != nil {
					log.Printf("bundle distribution failed: %v", err)
				}
			case <-ticker.C:
				if err := d.RotateSigningKey(); err != nil {
					log.Printf("bundle key rotation failed: %v", err)
				}
			}
		}
	}()
}

func (d *BundleDistributor) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = false
	d.mu.Unlock()

	close(d.stopCh)
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// NotifyChange coalesces change notifications; pending notifications are
// dropped rather than queued.
func (d *BundleDistributor) NotifyChange() {
	select {
	case d.notifyCh <- struct{}{}:
	default:
	}
}

func (d *BundleDistributor) RegisterSubscriber(sub BundleSubscriber) {
	if sub == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers = append(d.subscribers, sub)
}

func (d *BundleDistributor) RotateSigningKey() error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.priv = priv
	d.pub = pub
	d.mu.Unlock()
	return nil
}

func (d *BundleDistributor) CurrentPublicKey() ed25519.PublicKey {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append(ed25519.PublicKey(nil), d.pub...)
}

func (d *BundleDistributor) distribute(ctx context.Context) error {
	roles, err := d.roles.ListRoles(ctx)
	if err != nil {
		return err
	}
	groups, err := d.groups.ListGroups(ctx)
	if err != nil {
		return err
	}
	d.mu.RLock()
	priv := d.priv
	d.mu.RUnlock()

	bundle, err := SignBundle(priv, roles, groups)
	if err != nil {
		return err
	}
	if bundle.Meta == nil {
		bundle.Meta = map[string]any{}
	}
	bundle.Meta["generated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	bundle.Meta["signing_key"] = base64.StdEncoding.EncodeToString(d.CurrentPublicKey())

	d.mu.RLock()
	subs := append([]BundleSubscriber(nil), d.subscribers...)
	d.mu.RUnlock()
	for _, sub := range subs {
		if err := sub.OnBundle(ctx, d.CurrentPublicKey(), bundle); err != nil {
			log.Printf("bundle subscriber error: %v", err)
		}
	}
	return nil
}
