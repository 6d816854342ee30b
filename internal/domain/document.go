package domain

import (
	"slices"
	"time"
)

// SSHIdentity はSSH認証情報を表す。鍵の中身は外部コーデックで扱うため不透明な文字列として保持する。
type SSHIdentity struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Username   string    `json:"username"`
	PrivateKey string    `json:"privateKey,omitempty"`
	PublicKey  string    `json:"publicKey,omitempty"`
	Passphrase string    `json:"passphrase,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ServerProfile は接続先サーバーのプロファイルを表す。
type ServerProfile struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Host       string    `json:"host"`
	Port       int       `json:"port"`
	IdentityID string    `json:"identityId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Project はサーバーをまとめるプロジェクト設定を表す。
type Project struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	ServerIDs []string `json:"serverIds,omitempty"`
}

// Preferences はアプリケーション設定を表す。
type Preferences struct {
	Theme              string `json:"theme"`
	TerminalFontSize   int    `json:"terminalFontSize"`
	KeepAliveSeconds   int    `json:"keepAliveSeconds"`
	ConfirmBeforeClose bool   `json:"confirmBeforeClose"`
}

// Document は永続化される単一のドキュメントを表す。
type Document struct {
	Version      int             `json:"version"`
	Identities   []SSHIdentity   `json:"identities"`
	Servers      []ServerProfile `json:"servers"`
	Projects     []Project       `json:"projects"`
	Preferences  *Preferences    `json:"preferences,omitempty"`
	LastModified time.Time       `json:"lastModified"`
}

// Clone はドキュメントの深いコピーを返す。
// マイグレーションは受け取ったドキュメントを変更せず、新しい値を返す。
func (d Document) Clone() Document {
	// 空のスライスは空のまま、nilはnilのまま複製する。
	out := d
	out.Identities = slices.Clone(d.Identities)
	out.Servers = slices.Clone(d.Servers)
	out.Projects = slices.Clone(d.Projects)
	for i := range out.Projects {
		out.Projects[i].ServerIDs = slices.Clone(d.Projects[i].ServerIDs)
	}
	if d.Preferences != nil {
		prefs := *d.Preferences
		out.Preferences = &prefs
	}
	return out
}

// OrphanedReferences は存在しないIDへの参照を列挙する。
func (d Document) OrphanedReferences() []string {
	identities := make(map[string]struct{}, len(d.Identities))
	for _, id := range d.Identities {
		identities[id.ID] = struct{}{}
	}
	servers := make(map[string]struct{}, len(d.Servers))
	for _, s := range d.Servers {
		servers[s.ID] = struct{}{}
	}

	var orphans []string
	for _, s := range d.Servers {
		if s.IdentityID == "" {
			continue
		}
		if _, ok := identities[s.IdentityID]; !ok {
			orphans = append(orphans, "server "+s.ID+" -> identity "+s.IdentityID)
		}
	}
	for _, p := range d.Projects {
		for _, sid := range p.ServerIDs {
			if _, ok := servers[sid]; !ok {
				orphans = append(orphans, "project "+p.ID+" -> server "+sid)
			}
		}
	}
	return orphans
}
