// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import "time"

// MasterKeySize はマスター鍵のバイト長 (AES-256)。
const MasterKeySize = 32

// ProtectionLevel はマスター鍵の保護方式を表す。
type ProtectionLevel string

const (
	// ProtectionHSM はCloud KMSのHSMでラップされた鍵を表す。
	ProtectionHSM ProtectionLevel = "hsm"
	// ProtectionKeychain はOSキーチェーンに保存された鍵を表す。
	ProtectionKeychain ProtectionLevel = "keychain"
	// ProtectionPassphrase はパスフレーズ由来の鍵でラップされた鍵を表す。
	ProtectionPassphrase ProtectionLevel = "passphrase"
	// ProtectionSoftware はソフトウェアのみで保持される鍵を表す。
	ProtectionSoftware ProtectionLevel = "software"
)

// HardwareBacked はハードウェアで保護されているかを返す。
func (p ProtectionLevel) HardwareBacked() bool {
	return p == ProtectionHSM || p == ProtectionKeychain
}

// WrappedKey は永続化されたラップ済みマスター鍵エンティティを表す。
type WrappedKey struct {
	ID         string
	Alias      string
	Material   []byte
	Protection ProtectionLevel
	CreatedAt  time.Time
}

// SymmetricKey は復号済みのマスター鍵を表す。
type SymmetricKey struct {
	Alias      string
	Material   []byte // 平文の鍵
	Protection ProtectionLevel
}

// Valid は鍵長がAES-256に一致するかを返す。
func (k SymmetricKey) Valid() bool {
	return len(k.Material) == MasterKeySize
}
