package domain

// IVSize はAES-GCMの初期化ベクトル長。
const IVSize = 12

// Compression はエンベロープ本体の圧縮方式を表す。
// ディスク上では1バイトのフラグとして表現される。
type Compression byte

const (
	CompressionNone    Compression = 0
	CompressionDeflate Compression = 1
)

// Valid は既知の圧縮方式かを返す。
func (c Compression) Valid() bool {
	return c == CompressionNone || c == CompressionDeflate
}

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionDeflate:
		return "deflate"
	}
	return "unknown"
}

// Envelope は暗号化されたドキュメントを表す。
// 暗号化ごとに新しく生成され、部分的に更新されることはない。
type Envelope struct {
	Compression Compression
	IV          [IVSize]byte
	Ciphertext  []byte // 暗号文と認証タグ
}

// Compressed は本体が圧縮されているかを返す。
func (e Envelope) Compressed() bool {
	return e.Compression == CompressionDeflate
}
