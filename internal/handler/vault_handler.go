// Package handler はHTTPハンドラを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"vault-store/internal/domain"
	"vault-store/internal/middleware"
	"vault-store/internal/usecase"
	"vault-store/pkg/httputil"
)

// VaultHandler はHTTPハンドラを提供する。
type VaultHandler struct {
	documents  *usecase.DocumentService
	registry   *usecase.MigrationRegistry
	protection domain.ProtectionLevel
}

// NewVaultHandler は新しいVaultHandlerを生成する。
func NewVaultHandler(documents *usecase.DocumentService, registry *usecase.MigrationRegistry, protection domain.ProtectionLevel) *VaultHandler {
	return &VaultHandler{
		documents:  documents,
		registry:   registry,
		protection: protection,
	}
}

// StatusResponse は保管庫の状態のレスポンス形式。
type StatusResponse struct {
	DocumentExists bool   `json:"document_exists"`
	StoredVersion  int    `json:"stored_version"`
	CurrentVersion int    `json:"current_version"`
	NeedsMigration bool   `json:"needs_migration"`
	KeyExists      bool   `json:"key_exists"`
	Intact         bool   `json:"intact"`
	Protection     string `json:"protection"`
	HardwareBacked bool   `json:"hardware_backed"`
}

// MigrateRequest はマイグレーション要求の形式。target_versionを省略した場合は現在のバージョン。
type MigrateRequest struct {
	TargetVersion *int `json:"target_version,omitempty"`
}

// MigrationResponse はマイグレーション結果のレスポンス形式。
type MigrationResponse struct {
	Success       bool   `json:"success"`
	FromVersion   int    `json:"from_version"`
	ToVersion     int    `json:"to_version"`
	Message       string `json:"message"`
	DurationMs    int64  `json:"duration_ms"`
	BackupCreated bool   `json:"backup_created"`
	BackupName    string `json:"backup_name,omitempty"`
}

// VerifyResponse は整合性確認のレスポンス形式。
type VerifyResponse struct {
	Intact bool `json:"intact"`
}

// MigrationUnitResponse は登録済みユニットのレスポンス形式。
type MigrationUnitResponse struct {
	FromVersion int    `json:"from_version"`
	ToVersion   int    `json:"to_version"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Reversible  bool   `json:"reversible"`
}

// MigrationListResponse は登録済みユニット一覧のレスポンス形式。
type MigrationListResponse struct {
	Migrations     []MigrationUnitResponse  `json:"migrations"`
	LowestVersion  int                      `json:"lowest_version"`
	HighestVersion int                      `json:"highest_version"`
	CurrentVersion int                      `json:"current_version"`
	Chain          usecase.ChainValidation `json:"chain"`
}

// MigrationPathResponse は移行経路のレスポンス形式。
type MigrationPathResponse struct {
	FromVersion int                     `json:"from_version"`
	ToVersion   int                     `json:"to_version"`
	HasPath     bool                    `json:"has_path"`
	Steps       []MigrationUnitResponse `json:"steps"`
}

// MigrationRecordResponse はマイグレーション履歴のレスポンス形式。
type MigrationRecordResponse struct {
	ID          string `json:"id"`
	FromVersion int    `json:"from_version"`
	ToVersion   int    `json:"to_version"`
	Status      string `json:"status"`
	Message     string `json:"message"`
	DurationMs  int64  `json:"duration_ms"`
	BackupName  string `json:"backup_name,omitempty"`
	AppliedAt   string `json:"applied_at"`
}

// MigrationHistoryResponse はマイグレーション履歴一覧のレスポンス形式。
type MigrationHistoryResponse struct {
	Records []MigrationRecordResponse `json:"records"`
}

func toUnitResponses(units []domain.MigrationUnit) []MigrationUnitResponse {
	out := make([]MigrationUnitResponse, len(units))
	for i, u := range units {
		out[i] = MigrationUnitResponse{
			FromVersion: u.FromVersion(),
			ToVersion:   u.ToVersion(),
			Name:        u.Name(),
			Description: u.Description(),
			Reversible:  u.Reversible(),
		}
	}
	return out
}

// writeVaultError はエラーを利用者向けのレスポンスに変換する。暗号処理の詳細は返さない。
func writeVaultError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrDocumentNotFound):
		httputil.Error(w, http.StatusNotFound, "DOCUMENT_NOT_FOUND", "no document stored")
	case errors.Is(err, domain.ErrKeyUnavailable),
		errors.Is(err, domain.ErrAuthenticationFailed),
		errors.Is(err, domain.ErrMalformedEnvelope):
		httputil.Error(w, http.StatusUnprocessableEntity, "DATA_UNREADABLE", domain.UserMessage(err))
	default:
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// GetStatus は保管庫の状態を返す。
func (h *VaultHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.documents.Status(r.Context())
	if err != nil {
		writeVaultError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, StatusResponse{
		DocumentExists: status.DocumentExists,
		StoredVersion:  status.StoredVersion,
		CurrentVersion: status.CurrentVersion,
		NeedsMigration: status.NeedsMigration,
		KeyExists:      status.KeyExists,
		Intact:         status.Intact,
		Protection:     string(h.protection),
		HardwareBacked: h.protection.HardwareBacked(),
	})
}

// Migrate は保存済みドキュメントを指定バージョンへ移行する。
func (h *VaultHandler) Migrate(w http.ResponseWriter, r *http.Request) {
	var req MigrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	target := domain.CurrentSchemaVersion.Number
	if req.TargetVersion != nil {
		target = *req.TargetVersion
	}
	if target < 0 {
		httputil.Error(w, http.StatusBadRequest, "INVALID_VERSION", "target_version must not be negative")
		return
	}

	outcome, err := h.documents.Migrate(r.Context(), target, nil)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "MIGRATE", target, "FAILED")
		writeVaultError(w, err)
		return
	}

	resp := MigrationResponse{
		Success:       outcome.Success,
		FromVersion:   outcome.FromVersion,
		ToVersion:     outcome.ToVersion,
		Message:       outcome.Message,
		DurationMs:    outcome.DurationMs(),
		BackupCreated: outcome.BackupCreated,
		BackupName:    outcome.BackupName,
	}
	if !outcome.Success {
		middleware.WriteAuditLog(r.Context(), "MIGRATE", target, "FAILED")
		resp.Message = domain.UserMessage(outcome.Cause)
		httputil.JSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	middleware.WriteAuditLog(r.Context(), "MIGRATE", target, "SUCCESS")
	httputil.JSON(w, http.StatusOK, resp)
}

// Verify は保存済みドキュメントの整合性を確認する。
func (h *VaultHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ok, err := h.documents.Verify(r.Context())
	if err != nil {
		writeVaultError(w, err)
		return
	}

	result := "SUCCESS"
	if !ok {
		result = "FAILED"
	}
	middleware.WriteAuditLog(r.Context(), "VERIFY", 0, result)
	httputil.JSON(w, http.StatusOK, VerifyResponse{Intact: ok})
}

// WipeKey はマスター鍵を削除する。保存済みのドキュメントは以後復号できない。
func (h *VaultHandler) WipeKey(w http.ResponseWriter, r *http.Request) {
	if err := h.documents.Wipe(r.Context()); err != nil {
		middleware.WriteAuditLog(r.Context(), "WIPE_KEY", 0, "FAILED")
		writeVaultError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "WIPE_KEY", 0, "SUCCESS")
	httputil.NoContent(w)
}

// ListMigrations は登録済みユニットとチェーンの検証結果を返す。
func (h *VaultHandler) ListMigrations(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, MigrationListResponse{
		Migrations:     toUnitResponses(h.registry.All()),
		LowestVersion:  h.registry.LowestVersion(),
		HighestVersion: h.registry.HighestVersion(),
		CurrentVersion: domain.CurrentSchemaVersion.Number,
		Chain:          h.registry.ValidateChain(),
	})
}

// GetMigrationPath はfromからtoへの移行経路を返す。
func (h *VaultHandler) GetMigrationPath(w http.ResponseWriter, r *http.Request) {
	from, err := strconv.Atoi(r.URL.Query().Get("from"))
	if err != nil || from < 0 {
		httputil.Error(w, http.StatusBadRequest, "INVALID_VERSION", "from must be a non-negative integer")
		return
	}
	to, err := strconv.Atoi(r.URL.Query().Get("to"))
	if err != nil || to < 0 {
		httputil.Error(w, http.StatusBadRequest, "INVALID_VERSION", "to must be a non-negative integer")
		return
	}

	path := h.registry.FindPath(from, to)
	httputil.JSON(w, http.StatusOK, MigrationPathResponse{
		FromVersion: from,
		ToVersion:   to,
		HasPath:     from == to || len(path) > 0,
		Steps:       toUnitResponses(path),
	})
}

// GetMigrationHistory はマイグレーション履歴を返す。
func (h *VaultHandler) GetMigrationHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.documents.History(r.Context())
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	resp := MigrationHistoryResponse{Records: make([]MigrationRecordResponse, len(records))}
	for i, rec := range records {
		resp.Records[i] = MigrationRecordResponse{
			ID:          rec.ID,
			FromVersion: rec.FromVersion,
			ToVersion:   rec.ToVersion,
			Status:      string(rec.Status),
			Message:     rec.Message,
			DurationMs:  rec.DurationMs,
			BackupName:  rec.BackupName,
			AppliedAt:   rec.AppliedAt.Format(time.RFC3339),
		}
	}
	httputil.JSON(w, http.StatusOK, resp)
}
