package permit

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

func TestSignAndVerifyBundle(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	roles := []*Role{NewRoleBuilder().ID("editor").Allow("posts.*").Build()}
	groups := []*Group{NewGroupBuilder().ID("eng").Allow("code.*").Build()}

	bundle, err := SignBundle(priv, roles, groups)
	if err != nil {
		t.Fatalf("sign bundle: %v", err)
	}
	ok, err := VerifyBundle(pub, bundle)
	if err != nil || !ok {
		t.Fatalf("bundle verification failed: %v", err)
	}

	// tampering with a grant breaks the signature
	bundle.Roles[0].Permissions[0].Pattern = "*"
	if ok, _ := VerifyBundle(pub, bundle); ok {
		t.Fatal("tampered bundle must not verify")
	}
	bundle.Roles[0].Permissions[0].Pattern = "posts.*"

	// a different key must not verify
	otherPub, _, _ := ed25519.GenerateKey(rand.Reader)
	if ok, _ := VerifyBundle(otherPub, bundle); ok {
		t.Fatal("wrong key must not verify")
	}

	// missing signature
	delete(bundle.Signatures, "role:editor")
	if ok, _ := VerifyBundle(pub, bundle); ok {
		t.Fatal("missing signature must not verify")
	}
}

func TestApplySignedBundle(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)
	e := newTestEngine()
	ctx := context.Background()

	roles := []*Role{NewRoleBuilder().ID("editor").Allow("posts.*").Build()}
	groups := []*Group{NewGroupBuilder().ID("eng").Allow("code.*").Build()}
	bundle, err := SignBundle(priv, roles, groups)
	if err != nil {
		t.Fatalf("sign bundle: %v", err)
	}

	if err := e.ApplySignedBundle(ctx, pub, bundle); err != nil {
		t.Fatalf("apply bundle: %v", err)
	}
	if err := e.AssignRole(ctx, "alice", "editor"); err != nil {
		t.Fatalf("assign role: %v", err)
	}
	d, _ := e.HasPermission(ctx, "alice", "posts.edit", nil)
	if !d.Allowed {
		t.Fatalf("bundle role should allow: %+v", d)
	}

	otherPub, _, _ := ed25519.GenerateKey(rand.Reader)
	if err := e.ApplySignedBundle(ctx, otherPub, bundle); err == nil {
		t.Fatal("bundle under the wrong key must not apply")
	}
}

func TestBundleDistributor(t *testing.T) {
	roleStore := NewMemoryRoleStore()
	groupStore := NewMemoryGroupStore()
	ctx := context.Background()

	if err := roleStore.CreateRole(ctx, NewRoleBuilder().ID("editor").Allow("posts.*").Build()); err != nil {
		t.Fatalf("create role: %v", err)
	}

	dist, err := NewBundleDistributor(roleStore, groupStore)
	if err != nil {
		t.Fatalf("new distributor: %v", err)
	}

	received := make(chan *SignedBundle, 1)
	dist.RegisterSubscriber(BundleSubscriberFunc(func(_ context.Context, pub ed25519.PublicKey, b *SignedBundle) error {
		if ok, err := VerifyBundle(pub, b); err != nil || !ok {
			t.Errorf("delivered bundle must verify: %v", err)
		}
		select {
		case received <- b:
		default:
		}
		return nil
	}))

	dist.Start(ctx)
	defer dist.Stop(context.Background())

	dist.NotifyChange()

	select {
	case b := <-received:
		if len(b.Roles) != 1 || b.Roles[0].ID != "editor" {
			t.Fatalf("unexpected bundle contents: %+v", b.Roles)
		}
		if b.Meta["generated_at"] == nil {
			t.Fatal("bundle meta missing generated_at")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never received a bundle")
	}

	if err := dist.RotateSigningKey(); err != nil {
		t.Fatalf("rotate key: %v", err)
	}
	if len(dist.CurrentPublicKey()) != ed25519.PublicKeySize {
		t.Fatal("rotated public key has wrong size")
	}
}
