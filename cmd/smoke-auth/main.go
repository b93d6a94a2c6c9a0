package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"signet.dev/internal/auth"
	"signet.dev/internal/provider"
)

// Exercises the full credential lifecycle against a throwaway file store:
// challenge, verify, resolve, refresh, replay, revoke, restart.
func main() {
	dir, err := os.MkdirTemp("", "signet-smoke-*")
	if err != nil {
		log.Fatalf("tempdir: %v", err)
	}
	defer os.RemoveAll(dir)
	statePath := filepath.Join(dir, "state.json")

	store, err := auth.NewFileStore(statePath)
	if err != nil {
		log.Fatalf("filestore: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	svc, err := auth.NewService(ctx, store, provider.NewLocalTest())
	if err != nil {
		log.Fatalf("engine: %v", err)
	}

	email := "smoke@signet.dev"
	ch, err := svc.StartChallenge(ctx, email)
	if err != nil {
		log.Fatalf("start challenge: %v", err)
	}
	res, err := svc.VerifyChallenge(ctx, auth.VerifyChallengeInput{
		ChallengeID: ch.ChallengeID,
		Code:        provider.LocalCode(email),
		ClientName:  "smoke",
		DeviceID:    "smoke-device",
	})
	if err != nil {
		log.Fatalf("verify challenge: %v", err)
	}

	if _, err := svc.SessionFromAccessToken(ctx, res.Tokens.AccessToken); err != nil {
		log.Fatalf("resolve access token: %v", err)
	}

	rot, err := svc.RefreshSession(ctx, res.Tokens.RefreshToken, "smoke-device", true)
	if err != nil {
		log.Fatalf("refresh: %v", err)
	}

	// Replaying the rotated token must fail and revoke the session.
	if _, err := svc.RefreshSession(ctx, res.Tokens.RefreshToken, "smoke-device", true); !errors.Is(err, auth.ErrUnauthorized) {
		log.Fatalf("replay was not rejected: %v", err)
	}
	if _, err := svc.SessionFromAccessToken(ctx, rot.Tokens.AccessToken); !errors.Is(err, auth.ErrUnauthorized) {
		log.Fatalf("session survived replay detection: %v", err)
	}

	// Fresh sign-in, then check the state survives a restart.
	res2, err := svc.SignInLocalTest(ctx, email, "smoke", "smoke-device-2", "", "")
	if err != nil {
		log.Fatalf("localtest sign-in: %v", err)
	}
	reloaded, err := auth.NewService(ctx, store, provider.NewLocalTest())
	if err != nil {
		log.Fatalf("reload engine: %v", err)
	}
	bundle, err := reloaded.SessionFromAccessToken(ctx, res2.Tokens.AccessToken)
	if err != nil {
		log.Fatalf("resolve after restart: %v", err)
	}
	if bundle.User.ID != res.User.ID {
		log.Fatalf("user identity drifted across restart: %s vs %s", bundle.User.ID, res.User.ID)
	}

	if err := reloaded.RevokeSessionByAccessToken(ctx, res2.Tokens.AccessToken); err != nil {
		log.Fatalf("revoke: %v", err)
	}

	fmt.Printf("✅ authd smoke test passed: user=%s\n", bundle.User.ID)
}
