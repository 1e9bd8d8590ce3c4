package tunnel

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"
)

// writeKey writes a fresh ed25519 key in OpenSSH format, encrypted when
// passphrase is non-empty, and returns its signer.
func writeKey(t *testing.T, path, passphrase string) ssh.Signer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(priv, "gateslam-test")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "gateslam-test", []byte(passphrase))
	}
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	return signer
}

func stubSecret(t *testing.T, secret string) *[]string {
	t.Helper()
	var prompts []string
	orig := readSecret
	readSecret = func(prompt string) ([]byte, error) {
		prompts = append(prompts, prompt)
		return []byte(secret), nil
	}
	t.Cleanup(func() { readSecret = orig })
	return &prompts
}

func TestBuildAuthMethods_ExplicitKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_test")
	writeKey(t, keyPath, "")

	methods, err := BuildAuthMethods(&GatewayConfig{KeyPath: keyPath})
	if err != nil {
		t.Fatalf("BuildAuthMethods: %v", err)
	}
	if len(methods) != 1 {
		t.Fatalf("got %d methods, want 1", len(methods))
	}
}

func TestBuildAuthMethods_EncryptedKeyPrompts(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_test")
	writeKey(t, keyPath, "hunter2")
	prompts := stubSecret(t, "hunter2")

	if _, err := BuildAuthMethods(&GatewayConfig{KeyPath: keyPath}); err != nil {
		t.Fatalf("BuildAuthMethods: %v", err)
	}
	if len(*prompts) != 1 || !strings.Contains((*prompts)[0], keyPath) {
		t.Errorf("prompts = %q", *prompts)
	}
}

func TestBuildAuthMethods_WrongPassphrase(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_test")
	writeKey(t, keyPath, "hunter2")
	stubSecret(t, "wrong")

	_, err := BuildAuthMethods(&GatewayConfig{KeyPath: keyPath})
	if err == nil || !strings.Contains(err.Error(), "decrypting key") {
		t.Fatalf("err = %v, want decrypting key failure", err)
	}
}

func TestBuildAuthMethods_MissingKey(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")

	_, err := BuildAuthMethods(&GatewayConfig{KeyPath: "/nonexistent/key"})
	if err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestBuildAuthMethods_PasswordPrompt(t *testing.T) {
	prompts := stubSecret(t, "s3cret")

	methods, err := BuildAuthMethods(&GatewayConfig{User: "relay", Host: "gw.example", PromptPass: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(methods) != 1 {
		t.Fatalf("got %d methods, want 1", len(methods))
	}
	if got, want := (*prompts)[0], "relay@gw.example password: "; got != want {
		t.Errorf("prompt = %q, want %q", got, want)
	}
}

func TestBuildAuthMethods_NothingAvailable(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	t.Setenv("HOME", t.TempDir())

	_, err := BuildAuthMethods(&GatewayConfig{})
	if err == nil || !strings.Contains(err.Error(), "--ssh-key") {
		t.Fatalf("err = %v, want hint naming --ssh-key", err)
	}
}

func TestHostKeyCallback_Insecure(t *testing.T) {
	cb, err := hostKeyCallback(&GatewayConfig{StrictHostKey: false})
	if err != nil {
		t.Fatal(err)
	}
	if cb == nil {
		t.Fatal("callback should not be nil")
	}
}

func TestHostKeyCallback_StrictMissingFile(t *testing.T) {
	cfg := &GatewayConfig{StrictHostKey: true, KnownHosts: filepath.Join(t.TempDir(), "absent")}
	if _, err := hostKeyCallback(cfg); err == nil {
		t.Fatal("expected error for missing known_hosts")
	}
}
