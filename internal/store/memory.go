package store

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"docsearch/internal/apperr"
)

// Memory is an in-process Store used by tests that exercise C4/C5 logic
// without a live Postgres connection. It keeps the same invariants as the
// Postgres implementation (unique package names, unique (name, path) chunks)
// but has no persistence and no SQL.
type Memory struct {
	mu sync.Mutex

	nextPackageID int64
	nextConfigID  int64
	nextJobID     int64

	packages map[string]*Package
	configs  map[int64]*PackageConfig
	chunks   map[string][]memoryChunk // keyed by package name
	jobs     map[int64]*IngestionJob
}

type memoryChunk struct {
	path       string
	content    string
	vector     []float32
	tokenCount int
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		packages: make(map[string]*Package),
		configs:  make(map[int64]*PackageConfig),
		chunks:   make(map[string][]memoryChunk),
		jobs:     make(map[int64]*IngestionJob),
	}
}

func (m *Memory) Close() {}

func (m *Memory) UpsertPackage(ctx context.Context, name, version string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.packages[name]; ok {
		if version != "" {
			p.Version = version
		}
		p.LastUpdated = now()
		return p.ID, nil
	}
	m.nextPackageID++
	m.packages[name] = &Package{ID: m.nextPackageID, Name: name, Version: version, LastUpdated: now()}
	return m.nextPackageID, nil
}

func (m *Memory) HasEmbeddings(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks[name]) > 0, nil
}

func (m *Memory) ListPackagesWithEmbeddings(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for name, rows := range m.chunks {
		if len(rows) > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) InsertEmbeddingsBatch(ctx context.Context, packageID int64, name string, rows []EmbeddingRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pkg *Package
	for _, p := range m.packages {
		if p.ID == packageID {
			pkg = p
			break
		}
	}
	if pkg == nil {
		return apperr.New(apperr.StoreErr, "memory.InsertEmbeddingsBatch", errNotFound("package id"))
	}

	existing := m.chunks[name]
	byPath := make(map[string]int, len(existing))
	for i, c := range existing {
		byPath[c.path] = i
	}
	for _, r := range rows {
		c := memoryChunk{path: r.Path, content: r.Content, vector: r.Vector, tokenCount: r.TokenCount}
		if idx, ok := byPath[r.Path]; ok {
			existing[idx] = c
		} else {
			existing = append(existing, c)
			byPath[r.Path] = len(existing) - 1
		}
	}
	m.chunks[name] = existing

	totalTokens := 0
	for _, c := range existing {
		totalTokens += c.tokenCount
	}
	pkg.TotalDocs = len(existing)
	pkg.TotalTokens = totalTokens
	return nil
}

func (m *Memory) SearchSimilar(ctx context.Context, name string, queryVector []float32, k int) ([]SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k <= 0 {
		k = 10
	}
	rows := m.chunks[name]
	results := make([]SearchResult, 0, len(rows))
	for _, r := range rows {
		results = append(results, SearchResult{
			Path:       r.path,
			Content:    r.content,
			Similarity: cosineSimilarity(queryVector, r.vector),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (m *Memory) CountDocuments(ctx context.Context, name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks[name]), nil
}

func (m *Memory) DeleteEmbeddings(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chunks, name)
	if p, ok := m.packages[name]; ok {
		p.TotalDocs = 0
		p.TotalTokens = 0
	}
	return nil
}

func (m *Memory) ListConfigs(ctx context.Context, enabledOnly bool) ([]PackageConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PackageConfig
	for _, c := range m.configs {
		if enabledOnly && !c.Enabled {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].VersionSpec < out[j].VersionSpec
	})
	return out, nil
}

func (m *Memory) GetConfig(ctx context.Context, name, versionSpec string) (PackageConfig, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.configs {
		if c.Name == name && c.VersionSpec == versionSpec {
			return *c, true, nil
		}
	}
	return PackageConfig{}, false, nil
}

func (m *Memory) UpsertConfig(ctx context.Context, cfg PackageConfig) (PackageConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.configs {
		if c.Name == cfg.Name && c.VersionSpec == cfg.VersionSpec {
			if cfg.CurrentVersion != "" {
				c.CurrentVersion = cfg.CurrentVersion
			}
			c.Features = cfg.Features
			c.ExpectedDocs = cfg.ExpectedDocs
			c.Enabled = cfg.Enabled
			if cfg.LastChecked != nil {
				c.LastChecked = cfg.LastChecked
			}
			if cfg.LastPopulated != nil {
				c.LastPopulated = cfg.LastPopulated
			}
			c.UpdatedAt = now()
			return *c, nil
		}
	}

	m.nextConfigID++
	t := now()
	c := cfg
	c.ID = m.nextConfigID
	c.CreatedAt = t
	c.UpdatedAt = t
	m.configs[c.ID] = &c
	return c, nil
}

func (m *Memory) DeleteConfig(ctx context.Context, name, versionSpec string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.configs {
		if c.Name == name && c.VersionSpec == versionSpec {
			delete(m.configs, id)
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ConfigsNeedingUpdate(ctx context.Context) ([]PackageConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PackageConfig
	for _, c := range m.configs {
		if !c.Enabled {
			continue
		}
		pkg, hasPkg := m.packages[c.Name]
		versionMatches := hasPkg && (c.CurrentVersion == "" || pkg.Version == c.CurrentVersion)
		stale := c.VersionSpec == "latest" && c.LastChecked != nil && now().Sub(*c.LastChecked) > 24*time.Hour
		if !versionMatches || c.LastPopulated == nil || stale {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) CreateJob(ctx context.Context, configID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextJobID++
	m.jobs[m.nextJobID] = &IngestionJob{ID: m.nextJobID, PackageConfigID: configID, Status: JobPending, CreatedAt: now()}
	return m.nextJobID, nil
}

func (m *Memory) UpdateJob(ctx context.Context, id int64, update JobUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return apperr.New(apperr.StoreErr, "memory.UpdateJob", errNotFound("job"))
	}
	job.Status = update.Status
	if update.ErrorMessage != "" {
		job.ErrorMessage = update.ErrorMessage
	}
	if update.DocsPopulated != nil {
		job.DocsPopulated = *update.DocsPopulated
	}
	t := now()
	if update.Status == JobRunning {
		job.StartedAt = &t
	}
	if update.Status == JobCompleted || update.Status == JobFailed {
		job.CompletedAt = &t
	}
	return nil
}

func (m *Memory) AggregateStats(ctx context.Context) ([]Package, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Package
	for _, p := range m.packages {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

type notFoundErr string

func (e notFoundErr) Error() string { return string(e) }

func errNotFound(what string) error { return notFoundErr(what + " not found") }

func now() time.Time { return time.Now() }

var _ Store = (*Memory)(nil)
