package config

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/scrypt"

	"researchagent/pkg/logx"
)

// Secrets file configuration.
const (
	DefaultSecretsFile = "secrets.json.enc"
	saltSize           = 16
	nonceSize          = 12
	gcmTagSize         = 16
	scryptN            = 32768 // 2^15
	scryptR            = 8
	scryptP            = 1
	keySize            = 32 // AES-256
)

// APIKeyEnvVar returns the environment variable holding the provider's API key.
// Ollama needs no key and returns "".
func APIKeyEnvVar(provider string) (string, error) {
	switch provider {
	case ProviderGroq:
		return EnvGroqAPIKey, nil
	case ProviderOpenAI:
		return EnvOpenAIAPIKey, nil
	case ProviderAnthropic:
		return EnvAnthropicAPIKey, nil
	case ProviderGoogle:
		return EnvGoogleAPIKey, nil
	case ProviderOllama:
		return "", nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}
}

// Secrets resolves API credentials using standard precedence:
// 1. Decrypted secrets file (in memory)
// 2. AWS SSM Parameter Store
// 3. Environment variables.
type Secrets struct {
	file   map[string]string
	remote TokenSource
	getenv func(string) string

	mu          sync.Mutex
	remoteToken string
	remoteErr   error
	remoteDone  bool
}

// NewSecrets creates a resolver. Either source may be nil.
func NewSecrets(fileSecrets map[string]string, remote TokenSource) *Secrets {
	return &Secrets{
		file:   fileSecrets,
		remote: remote,
		getenv: os.Getenv,
	}
}

// GetSecret returns a secret by name from the secrets file or environment.
func (s *Secrets) GetSecret(name string) (string, error) {
	if value, ok := s.file[name]; ok && value != "" {
		return value, nil
	}
	if value := s.getenv(name); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("secret %s not found in secrets file or environment", name)
}

// GetAPIKey returns the API key for provider. The remote token is fetched at
// most once per Secrets value.
func (s *Secrets) GetAPIKey(ctx context.Context, provider string) (string, error) {
	envVar, err := APIKeyEnvVar(provider)
	if err != nil {
		return "", err
	}
	if envVar == "" {
		return "", nil
	}

	if value, ok := s.file[envVar]; ok && value != "" {
		return value, nil
	}

	if s.remote != nil {
		token, remoteErr := s.fetchRemote(ctx)
		if remoteErr == nil {
			return token, nil
		}
		if value := s.getenv(envVar); value != "" {
			logx.Warnf("remote secret unavailable (%v), using %s", remoteErr, envVar)
			return value, nil
		}
		return "", fmt.Errorf("API key for %s: %w", provider, remoteErr)
	}

	if value := s.getenv(envVar); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("API key for %s not found: set %s", provider, envVar)
}

func (s *Secrets) fetchRemote(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.remoteDone {
		s.remoteToken, s.remoteErr = s.remote.Token(ctx)
		s.remoteDone = true
	}
	return s.remoteToken, s.remoteErr
}

// SecretsFileExists checks if the encrypted secrets file exists.
func SecretsFileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EncryptSecretsFile encrypts secrets with a password-derived key and writes
// them to path as [salt][nonce][ciphertext+tag] with 0600 permissions.
func EncryptSecretsFile(path, password string, secrets map[string]string) error {
	passwordBytes := []byte(password)
	defer zero(passwordBytes)

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := scrypt.Key(passwordBytes, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return fmt.Errorf("failed to derive encryption key: %w", err)
	}
	defer zero(key)

	plaintext, err := json.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	fileData := make([]byte, 0, saltSize+nonceSize+len(ciphertext))
	fileData = append(fileData, salt...)
	fileData = append(fileData, nonce...)
	fileData = append(fileData, ciphertext...)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create secrets directory: %w", err)
		}
	}
	if err := os.WriteFile(path, fileData, 0600); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}
	return nil
}

// DecryptSecretsFile decrypts and returns secrets from path.
func DecryptSecretsFile(path, password string) (map[string]string, error) {
	fileData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}

	if len(fileData) < saltSize+nonceSize+gcmTagSize {
		return nil, fmt.Errorf("secrets file is corrupted or invalid format (too small)")
	}

	salt := fileData[:saltSize]
	nonce := fileData[saltSize : saltSize+nonceSize]
	ciphertext := fileData[saltSize+nonceSize:]

	passwordBytes := []byte(password)
	defer zero(passwordBytes)

	key, err := scrypt.Key(passwordBytes, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive decryption key: %w", err)
	}
	defer zero(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed (wrong password or corrupted file)")
	}

	var secrets map[string]string
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return nil, fmt.Errorf("failed to parse secrets: %w", err)
	}
	return secrets, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
