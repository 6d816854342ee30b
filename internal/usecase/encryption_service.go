package usecase

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"unicode/utf8"

	"github.com/klauspost/compress/zlib"

	"vault-store/internal/domain"
	"vault-store/internal/envelope"
)

const (
	// compressionThreshold は圧縮を行う平文のUTF-8バイト長の下限。固定値で設定不可。
	compressionThreshold = 1024
	// maxDecompressedSize は展開後のサイズ上限。
	maxDecompressedSize = 64 << 20
	tagSize             = 16 // 128 bits
)

// KeyStore はマスター鍵を保管するセキュアストアのインターフェース。
type KeyStore interface {
	GetOrCreateKey(ctx context.Context, alias string) (domain.SymmetricKey, error)
	DeleteKey(ctx context.Context, alias string) error
	KeyExists(ctx context.Context, alias string) (bool, error)
}

// EncryptOption は暗号化のオプション。
type EncryptOption func(*encryptOptions)

type encryptOptions struct {
	compression bool
}

// WithoutCompression は圧縮を無効にする。
func WithoutCompression() EncryptOption {
	return func(o *encryptOptions) { o.compression = false }
}

// EncryptionService はドキュメントの保存時暗号化を提供する。
// 鍵ストア以外の共有状態を持たないため、並行に呼び出してよい。
type EncryptionService struct {
	keys  KeyStore
	alias string
	rand  io.Reader
}

// NewEncryptionService は新しいEncryptionServiceを生成する。
func NewEncryptionService(keys KeyStore, alias string) *EncryptionService {
	return &EncryptionService{
		keys:  keys,
		alias: alias,
		rand:  rand.Reader,
	}
}

// Encrypt は平文をAES-256-GCMで暗号化する。
// 平文が1024バイト以上の場合は既定で圧縮してから暗号化する。
func (s *EncryptionService) Encrypt(ctx context.Context, plaintext string, opts ...EncryptOption) (domain.Envelope, error) {
	o := encryptOptions{compression: true}
	for _, opt := range opts {
		opt(&o)
	}

	aead, err := s.newAEAD(ctx, "encrypt", true)
	if err != nil {
		return domain.Envelope{}, err
	}

	env := domain.Envelope{Compression: domain.CompressionNone}
	payload := []byte(plaintext)
	if o.compression && len(payload) >= compressionThreshold {
		compressed, err := deflate(payload)
		if err != nil {
			return domain.Envelope{}, fmt.Errorf("compressing plaintext: %w", err)
		}
		payload = compressed
		env.Compression = domain.CompressionDeflate
	}

	if _, err := io.ReadFull(s.rand, env.IV[:]); err != nil {
		return domain.Envelope{}, fmt.Errorf("generating iv: %w", err)
	}
	env.Ciphertext = aead.Seal(nil, env.IV[:], payload, additionalData(env))
	return env, nil
}

// Decrypt はエンベロープを復号する。認証タグの検証に失敗した場合は別の鍵を試さずに失敗する。
func (s *EncryptionService) Decrypt(ctx context.Context, env domain.Envelope) (string, error) {
	if !env.Compression.Valid() {
		return "", domain.NewEncryptionError(domain.EncryptionMalformedEnvelope, "decrypt",
			fmt.Errorf("unknown compression %d", env.Compression))
	}
	if len(env.Ciphertext) < tagSize {
		return "", domain.NewEncryptionError(domain.EncryptionMalformedEnvelope, "decrypt",
			fmt.Errorf("ciphertext shorter than tag: %d bytes", len(env.Ciphertext)))
	}

	aead, err := s.newAEAD(ctx, "decrypt", false)
	if err != nil {
		return "", err
	}

	payload, err := aead.Open(nil, env.IV[:], env.Ciphertext, additionalData(env))
	if err != nil {
		return "", domain.NewEncryptionError(domain.EncryptionAuthenticationFailed, "decrypt", err)
	}

	if env.Compressed() {
		payload, err = inflate(payload)
		if err != nil {
			return "", domain.NewEncryptionError(domain.EncryptionMalformedEnvelope, "decrypt",
				fmt.Errorf("decompressing plaintext: %w", err))
		}
	}
	if !utf8.Valid(payload) {
		return "", domain.NewEncryptionError(domain.EncryptionMalformedEnvelope, "decrypt",
			fmt.Errorf("plaintext is not valid UTF-8"))
	}
	return string(payload), nil
}

// VerifyIntegrity は復号できるかを返す。エラーは返さない。
func (s *EncryptionService) VerifyIntegrity(ctx context.Context, env domain.Envelope) bool {
	_, err := s.Decrypt(ctx, env)
	if err != nil {
		slog.DebugContext(ctx, "integrity check failed",
			"operation", "verify_integrity",
			"error", err,
		)
		return false
	}
	return true
}

// Seal は平文を暗号化してディスク形式のバイト列を返す。
func (s *EncryptionService) Seal(ctx context.Context, plaintext string, opts ...EncryptOption) ([]byte, error) {
	env, err := s.Encrypt(ctx, plaintext, opts...)
	if err != nil {
		return nil, err
	}
	return envelope.Serialize(env), nil
}

// Open はディスク形式のバイト列を復号する。
func (s *EncryptionService) Open(ctx context.Context, data []byte) (string, error) {
	env, err := envelope.Deserialize(data)
	if err != nil {
		return "", err
	}
	return s.Decrypt(ctx, env)
}

// DeleteMasterKey はマスター鍵を削除する。
// 削除後、それまでに暗号化したエンベロープは復号できなくなる。
func (s *EncryptionService) DeleteMasterKey(ctx context.Context) error {
	if err := s.keys.DeleteKey(ctx, s.alias); err != nil {
		return fmt.Errorf("deleting master key: %w", err)
	}
	slog.InfoContext(ctx, "master key deleted",
		"operation", "delete_master_key",
		"alias", s.alias,
	)
	return nil
}

// MasterKeyExists はマスター鍵が存在するかを返す。
func (s *EncryptionService) MasterKeyExists(ctx context.Context) (bool, error) {
	exists, err := s.keys.KeyExists(ctx, s.alias)
	if err != nil {
		return false, fmt.Errorf("checking master key: %w", err)
	}
	return exists, nil
}

// newAEAD はマスター鍵からAES-256-GCMを生成する。create=falseの場合は鍵を新規作成しない。
func (s *EncryptionService) newAEAD(ctx context.Context, op string, create bool) (cipher.AEAD, error) {
	if !create {
		exists, err := s.keys.KeyExists(ctx, s.alias)
		if err != nil {
			return nil, domain.NewEncryptionError(domain.EncryptionKeyUnavailable, op, err)
		}
		if !exists {
			return nil, domain.NewEncryptionError(domain.EncryptionKeyUnavailable, op, domain.ErrKeyNotFound)
		}
	}

	key, err := s.keys.GetOrCreateKey(ctx, s.alias)
	if err != nil {
		slog.WarnContext(ctx, "master key unavailable",
			"operation", op,
			"alias", s.alias,
			"error", err,
		)
		return nil, domain.NewEncryptionError(domain.EncryptionKeyUnavailable, op, err)
	}
	if !key.Valid() {
		return nil, domain.NewEncryptionError(domain.EncryptionKeyUnavailable, op,
			fmt.Errorf("master key has %d bytes, want %d", len(key.Material), domain.MasterKeySize))
	}

	block, err := aes.NewCipher(key.Material)
	if err != nil {
		return nil, domain.NewEncryptionError(domain.EncryptionKeyUnavailable, op, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, domain.NewEncryptionError(domain.EncryptionKeyUnavailable, op, err)
	}
	return aead, nil
}

// additionalData は圧縮フラグを認証対象にする。ディスク上の形式は変わらない。
func additionalData(env domain.Envelope) []byte {
	return []byte{byte(env.Compression)}
}

func deflate(p []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(p); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(p []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(p))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, maxDecompressedSize+1))
	if err != nil {
		return nil, err
	}
	if len(out) > maxDecompressedSize {
		return nil, fmt.Errorf("decompressed size exceeds %d bytes", maxDecompressedSize)
	}
	return out, nil
}
