// Package envelope はディスク上のエンベロープ形式のシリアライズを提供する。
//
// 形式は固定でバージョンを持たない:
//
//	[1 byte: 圧縮フラグ (0/1)][12 bytes: IV][残り: 暗号文‖認証タグ]
//
// 形式を変える場合はこのレイアウトを拡張せず、新しいコンテナを定義する。
package envelope

import (
	"fmt"

	"vault-store/internal/domain"
)

const (
	flagSize = 1
	// HeaderSize はフラグとIVを合わせたヘッダ長。
	HeaderSize = flagSize + domain.IVSize
)

// Serialize はエンベロープをバイト列に変換する。
func Serialize(env domain.Envelope) []byte {
	out := make([]byte, HeaderSize+len(env.Ciphertext))
	out[0] = byte(env.Compression)
	copy(out[flagSize:HeaderSize], env.IV[:])
	copy(out[HeaderSize:], env.Ciphertext)
	return out
}

// Deserialize はバイト列をエンベロープに変換する。
func Deserialize(data []byte) (domain.Envelope, error) {
	if len(data) < HeaderSize {
		return domain.Envelope{}, domain.NewEncryptionError(domain.EncryptionMalformedEnvelope, "deserialize",
			fmt.Errorf("need at least %d bytes, got %d", HeaderSize, len(data)))
	}
	compression := domain.Compression(data[0])
	if !compression.Valid() {
		return domain.Envelope{}, domain.NewEncryptionError(domain.EncryptionMalformedEnvelope, "deserialize",
			fmt.Errorf("unknown compression flag 0x%02x", data[0]))
	}

	env := domain.Envelope{Compression: compression}
	copy(env.IV[:], data[flagSize:HeaderSize])
	env.Ciphertext = append([]byte(nil), data[HeaderSize:]...)
	return env, nil
}
