package runner

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

// keyPairPaths are the on-disk locations of a runner's SSH identity.
type keyPairPaths struct {
	privatePath string
	publicLine  string // OpenSSH authorized_keys line, not a path
}

// privateKeyName and publicKeyName are the filenames a runner's key
// pair is written under inside its work directory.
const (
	privateKeyName = "id_private"
	publicKeyName  = "id_private.pub"
)

// generateKeyPair mints a fresh ed25519 key pair and writes the
// private half to workDir/id_private in OpenSSH PEM format. It
// returns the private key path and the authorized_keys line for the
// public half.
func generateKeyPair(workDir string) (keyPairPaths, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return keyPairPaths{}, fmt.Errorf("runner: generate ed25519 key: %w", err)
	}

	privPath := filepath.Join(workDir, privateKeyName)
	if err := writePrivateKey(privPath, priv); err != nil {
		return keyPairPaths{}, err
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return keyPairPaths{}, fmt.Errorf("runner: convert public key: %w", err)
	}
	line := string(ssh.MarshalAuthorizedKey(sshPub))

	pubPath := filepath.Join(workDir, publicKeyName)
	if err := os.WriteFile(pubPath, []byte(line), 0o644); err != nil {
		return keyPairPaths{}, fmt.Errorf("runner: write public key: %w", err)
	}

	return keyPairPaths{privatePath: privPath, publicLine: line}, nil
}

func writePrivateKey(path string, priv ed25519.PrivateKey) error {
	block, err := ssh.MarshalPrivateKey(priv, "carapaceos runner key")
	if err != nil {
		return fmt.Errorf("runner: marshal private key: %w", err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return fmt.Errorf("runner: write private key: %w", err)
	}
	return nil
}

// reuseKeyPair copies an existing seed key pair (private key and its
// matching public line) from a sibling directory into workDir, for
// the ReuseSeedKeyPair opt-in path. It never generates anything; a
// missing source file is an error.
func reuseKeyPair(sourceDir, workDir string) (keyPairPaths, error) {
	srcPriv := filepath.Join(sourceDir, privateKeyName)
	srcPub := filepath.Join(sourceDir, publicKeyName)

	privData, err := os.ReadFile(srcPriv)
	if err != nil {
		return keyPairPaths{}, fmt.Errorf("runner: reuse private key: %w", err)
	}
	pubData, err := os.ReadFile(srcPub)
	if err != nil {
		return keyPairPaths{}, fmt.Errorf("runner: reuse public key: %w", err)
	}

	dstPriv := filepath.Join(workDir, privateKeyName)
	if err := os.WriteFile(dstPriv, privData, 0o600); err != nil {
		return keyPairPaths{}, fmt.Errorf("runner: write reused private key: %w", err)
	}
	dstPub := filepath.Join(workDir, publicKeyName)
	if err := os.WriteFile(dstPub, pubData, 0o644); err != nil {
		return keyPairPaths{}, fmt.Errorf("runner: write reused public key: %w", err)
	}

	return keyPairPaths{privatePath: dstPriv, publicLine: string(pubData)}, nil
}
