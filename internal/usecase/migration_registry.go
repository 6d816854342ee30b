package usecase

import (
	"fmt"
	"sort"
	"sync"

	"vault-store/internal/domain"
)

// maxPathSteps は経路探索の最大ステップ数。
const maxPathSteps = 10

// defaultVersion は空のレジストリが返すバージョン。
const defaultVersion = 1

type versionPair struct {
	from int
	to   int
}

// ChainValidation はマイグレーションチェーンの検証結果。
type ChainValidation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// MigrationRegistry は登録済みのマイグレーションユニットを管理する。
// すべての公開メソッドは同じミューテックスを保持したまま実行される。
type MigrationRegistry struct {
	mu    sync.Mutex
	units []domain.MigrationUnit
	index map[versionPair]int
}

// NewMigrationRegistry は空のMigrationRegistryを生成する。
func NewMigrationRegistry() *MigrationRegistry {
	return &MigrationRegistry{index: make(map[versionPair]int)}
}

// NewMigrationRegistryWith はユニットを登録済みのMigrationRegistryを生成する。
func NewMigrationRegistryWith(units ...domain.MigrationUnit) (*MigrationRegistry, error) {
	r := NewMigrationRegistry()
	for _, u := range units {
		if err := r.Register(u); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register はユニットを登録する。同じ(from, to)が登録済みの場合はErrDuplicateMigrationを返す。
func (r *MigrationRegistry) Register(unit domain.MigrationUnit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	from, to := unit.FromVersion(), unit.ToVersion()
	if from == to {
		return domain.NewMigrationError(domain.MigrationInvalidVersion, from, to,
			fmt.Errorf("migration %q has equal from and to version", unit.Name()))
	}
	key := versionPair{from: from, to: to}
	if i, ok := r.index[key]; ok {
		return domain.NewMigrationError(domain.MigrationDuplicate, from, to,
			fmt.Errorf("%q conflicts with registered %q", unit.Name(), r.units[i].Name()))
	}
	r.index[key] = len(r.units)
	r.units = append(r.units, unit)
	return nil
}

// FindMigration は(from, to)に直接一致するユニットを返す。
func (r *MigrationRegistry) FindMigration(from, to int) (domain.MigrationUnit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[versionPair{from: from, to: to}]
	if !ok {
		return nil, false
	}
	return r.units[i], true
}

// FindPath はfromからtoへのユニット列を返す。
// from == to の場合と経路が見つからない場合はどちらも空を返すため、呼び出し側でfrom == toを先に判定する。
func (r *MigrationRegistry) FindPath(from, to int) []domain.MigrationUnit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findPathLocked(from, to)
}

// HasPath は経路が存在するか、from == to であればtrueを返す。
func (r *MigrationRegistry) HasPath(from, to int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return from == to || len(r.findPathLocked(from, to)) > 0
}

func (r *MigrationRegistry) findPathLocked(from, to int) []domain.MigrationUnit {
	if from == to {
		return nil
	}

	var path []domain.MigrationUnit
	current := from
	for steps := 0; current != to; steps++ {
		if steps >= maxPathSteps {
			return nil
		}

		var next domain.MigrationUnit
		if from < to {
			next = r.nextUpgradeLocked(current, to)
		} else {
			next = r.nextDowngradeLocked(current, to)
		}
		if next == nil {
			return nil
		}

		path = append(path, next)
		if from < to {
			current = next.ToVersion()
		} else {
			current = next.FromVersion()
		}
	}
	return path
}

// nextUpgradeLocked はcurrentから出るユニットのうち、target以下で最大のtoを持つものを返す。
// 該当がなければtargetを超えるユニットのうちtoが最小のものを返す。登録順には依存しない。
func (r *MigrationRegistry) nextUpgradeLocked(current, target int) domain.MigrationUnit {
	var best, fallback domain.MigrationUnit
	for _, u := range r.units {
		if u.FromVersion() != current {
			continue
		}
		if u.ToVersion() <= target {
			if best == nil || u.ToVersion() > best.ToVersion() {
				best = u
			}
			continue
		}
		if fallback == nil || u.ToVersion() < fallback.ToVersion() {
			fallback = u
		}
	}
	if best != nil {
		return best
	}
	return fallback
}

// nextDowngradeLocked はcurrentに到達する逆変換可能なユニットのうち、
// target以上で最小のfromを持つものを返す。該当がなければfromが最大のものを返す。
func (r *MigrationRegistry) nextDowngradeLocked(current, target int) domain.MigrationUnit {
	var best, fallback domain.MigrationUnit
	for _, u := range r.units {
		if !u.Reversible() || u.ToVersion() != current {
			continue
		}
		if u.FromVersion() >= target {
			if best == nil || u.FromVersion() < best.FromVersion() {
				best = u
			}
			continue
		}
		if fallback == nil || u.FromVersion() > fallback.FromVersion() {
			fallback = u
		}
	}
	if best != nil {
		return best
	}
	return fallback
}

// ValidateChain は隣接するバージョン間の経路と循環依存を検証する。
func (r *MigrationRegistry) ValidateChain() ChainValidation {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := ChainValidation{Valid: true, Errors: []string{}}

	versions := r.versionsLocked()
	for i := 0; i+1 < len(versions); i++ {
		from, to := versions[i], versions[i+1]
		if !r.reachableLocked(from, to, make(map[int]bool)) {
			result.Errors = append(result.Errors, fmt.Sprintf("no path from %d to %d", from, to))
		}
	}

	if r.hasCycleLocked() {
		result.Errors = append(result.Errors, "circular dependency detected")
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// reachableLocked は登録済みの辺を辿ってfromからtoへ到達できるかを深さ優先で調べる。
func (r *MigrationRegistry) reachableLocked(from, to int, visited map[int]bool) bool {
	if from == to {
		return true
	}
	if visited[from] {
		return false
	}
	visited[from] = true
	for _, u := range r.units {
		if u.FromVersion() == from && r.reachableLocked(u.ToVersion(), to, visited) {
			return true
		}
	}
	return false
}

// hasCycleLocked は登録グラフに循環があるかを返す。訪問済みの判定は経路上の辺単位で行う。
func (r *MigrationRegistry) hasCycleLocked() bool {
	for _, u := range r.units {
		onPath := map[versionPair]bool{}
		if r.cycleFromLocked(u, u.FromVersion(), onPath) {
			return true
		}
	}
	return false
}

func (r *MigrationRegistry) cycleFromLocked(edge domain.MigrationUnit, start int, onPath map[versionPair]bool) bool {
	key := versionPair{from: edge.FromVersion(), to: edge.ToVersion()}
	if onPath[key] {
		return false
	}
	if edge.ToVersion() == start {
		return true
	}
	onPath[key] = true
	defer delete(onPath, key)

	for _, next := range r.units {
		if next.FromVersion() == edge.ToVersion() && r.cycleFromLocked(next, start, onPath) {
			return true
		}
	}
	return false
}

// HighestVersion は登録済みユニットの最大バージョンを返す。空の場合は1。
func (r *MigrationRegistry) HighestVersion() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	versions := r.versionsLocked()
	if len(versions) == 0 {
		return defaultVersion
	}
	return versions[len(versions)-1]
}

// LowestVersion は登録済みユニットの最小バージョンを返す。空の場合は1。
func (r *MigrationRegistry) LowestVersion() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	versions := r.versionsLocked()
	if len(versions) == 0 {
		return defaultVersion
	}
	return versions[0]
}

// All は登録済みユニットを(from, to)順に返す。
func (r *MigrationRegistry) All() []domain.MigrationUnit {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := append([]domain.MigrationUnit(nil), r.units...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FromVersion() != out[j].FromVersion() {
			return out[i].FromVersion() < out[j].FromVersion()
		}
		return out[i].ToVersion() < out[j].ToVersion()
	})
	return out
}

func (r *MigrationRegistry) versionsLocked() []int {
	seen := make(map[int]struct{}, len(r.units)*2)
	for _, u := range r.units {
		seen[u.FromVersion()] = struct{}{}
		seen[u.ToVersion()] = struct{}{}
	}
	versions := make([]int, 0, len(seen))
	for v := range seen {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return versions
}
